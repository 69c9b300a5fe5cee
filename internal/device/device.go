// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package device moves raw reports between the host and the tracker.
// Input reports flow from the device, feature reports (range, config,
// keep-alive) flow both ways. Payloads are opaque here; the report
// package decodes and encodes them.
package device

import (
	"errors"
	"fmt"
	"os"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/fusion"
)

// MaxReportSize is large enough for every input and feature report the
// tracker produces.
const MaxReportSize = 64

var (
	ErrClosed      = errors.New("device: closed")
	ErrUnsupported = errors.New("device: operation not supported by transport")
)

// Device is an open tracker.
type Device interface {
	// ReadReport blocks until the next input report and copies it into
	// buf, returning its length.
	ReadReport(buf []byte) (int, error)
	// SetFeature sends a feature report. buf[0] is the report id.
	SetFeature(buf []byte) error
	// GetFeature reads the feature report whose id is in buf[0] into buf
	// and returns its length.
	GetFeature(buf []byte) (int, error)
	Info() fusion.SensorInfo
	Close() error
}

// Open opens the transport selected by cfg. A recording is written
// alongside when cfg.RecordFile is set.
func Open(cfg *config.Config) (Device, error) {
	var (
		dev Device
		err error
	)
	switch cfg.DeviceTransport {
	case config.TransportHIDRaw:
		dev, err = OpenHIDRaw(cfg.DevicePath)
	case config.TransportSerial:
		dev, err = OpenSerial(cfg.DevicePath, cfg.DeviceBaudRate)
	case config.TransportReplay:
		dev, err = OpenReplay(cfg.DevicePath, true)
	case config.TransportMock:
		dev = NewMock(MockOptions{Paced: true})
	default:
		err = fmt.Errorf("device: unknown transport %q", cfg.DeviceTransport)
	}
	if err != nil {
		return nil, err
	}

	if cfg.DeviceSerialNumber != "" {
		dev = withSerial(dev, cfg.DeviceSerialNumber)
	}

	if cfg.RecordFile != "" {
		f, err := os.Create(cfg.RecordFile)
		if err != nil {
			dev.Close()
			return nil, fmt.Errorf("device: create recording: %w", err)
		}
		dev = NewRecordingDevice(dev, f)
	}
	return dev, nil
}

// serialOverride replaces the serial number a transport reports, for
// devices whose firmware leaves it empty.
type serialOverride struct {
	Device
	serial string
}

func withSerial(d Device, serial string) Device {
	return &serialOverride{Device: d, serial: serial}
}

func (d *serialOverride) Info() fusion.SensorInfo {
	info := d.Device.Info()
	info.SerialNumber = d.serial
	return info
}
