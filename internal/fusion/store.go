// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/head_tracker/internal/calibration"
)

var (
	ErrNoSerial      = errors.New("fusion: attached sensor has no serial number")
	ErrNotCalibrated = errors.New("fusion: no magnetometer calibration set")
)

// CalibrationStore persists named magnetometer calibrations per device.
// calibration.FileStore implements it.
type CalibrationStore interface {
	Save(dev calibration.Device, rec calibration.Record) error
	Load(serial, name string) (calibration.Record, error)
}

// SaveMagCalibration writes the current calibration and the yaw
// correction flag for the attached sensor under name.
func (e *Engine) SaveMagCalibration(store CalibrationStore, name string) error {
	e.mu.Lock()
	info := e.info
	rec := calibration.Record{
		Name:          name,
		Time:          e.magCalibrationTime,
		Matrix:        e.magCalibration,
		YawCorrection: e.enableYaw,
	}
	calibrated := e.magCalibrated
	e.mu.Unlock()

	if info.SerialNumber == "" {
		return ErrNoSerial
	}
	if !calibrated {
		return ErrNotCalibrated
	}
	dev := calibration.Device{
		Product:   info.Product,
		ProductID: info.ProductID,
		Serial:    info.SerialNumber,
	}
	if err := store.Save(dev, rec); err != nil {
		return fmt.Errorf("fusion: save calibration %q: %w", name, err)
	}
	return nil
}

// LoadMagCalibration installs the named calibration for the attached
// sensor. On success the yaw correction toggle follows the stored flag.
func (e *Engine) LoadMagCalibration(store CalibrationStore, name string) error {
	serial := e.SensorInfo().SerialNumber
	if serial == "" {
		return ErrNoSerial
	}
	rec, err := store.Load(serial, name)
	if err != nil {
		return fmt.Errorf("fusion: load calibration %q: %w", name, err)
	}

	e.mu.Lock()
	e.setMagCalibrationLocked(rec.Matrix, rec.Time)
	e.enableYaw = rec.YawCorrection
	e.mu.Unlock()
	return nil
}
