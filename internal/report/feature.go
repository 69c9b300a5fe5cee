// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package report

import (
	"encoding/binary"
	"log"
	"math"
)

// Feature report ids.
const (
	FeatureConfig    = 2
	FeatureRange     = 4
	FeatureKeepAlive = 8
)

// Feature report lengths including the id byte.
const (
	ConfigSize    = 7
	RangeSize     = 8
	KeepAliveSize = 5
)

// Gravity is the standard gravity used to express accelerometer ranges
// in g.
const Gravity = 9.81

// Logf reports encoder events such as a clamped range request.
var Logf = defaultLogf

var defaultLogf = log.Printf

// Hardware steps in the units the device stores: g, deg/s and milligauss.
var (
	accelRangeRamp = []uint16{2, 4, 8, 16}
	gyroRangeRamp  = []uint16{250, 500, 1000, 2000}
	magRangeRamp   = []uint16{880, 1300, 1900, 2500}
)

const (
	accelFactor = 1 / Gravity
	gyroFactor  = 180 / math.Pi
	magFactor   = 1000

	// absorbs float error so an exact hardware step does not round up
	rampSlack = 1e-3
)

// SensorRange is the full-scale range in SI units: m/s², rad/s and gauss.
type SensorRange struct {
	MaxAcceleration  float64 `json:"max_acceleration"`
	MaxRotationRate  float64 `json:"max_rotation_rate"`
	MaxMagneticField float64 `json:"max_magnetic_field"`
}

// MaxSensorRange is the widest range the hardware supports.
func MaxSensorRange() SensorRange {
	return SensorRange{
		MaxAcceleration:  float64(accelRangeRamp[len(accelRangeRamp)-1]) * Gravity,
		MaxRotationRate:  float64(gyroRangeRamp[len(gyroRangeRamp)-1]) / gyroFactor,
		MaxMagneticField: float64(magRangeRamp[len(magRangeRamp)-1]) / magFactor,
	}
}

// RangeReport is the device's view of a SensorRange.
type RangeReport struct {
	CommandID  uint16
	AccelScale uint8
	GyroScale  uint16
	MagScale   uint16
	// Clamped names the axes whose request exceeded the hardware maximum.
	Clamped []string
}

// NewRangeReport rounds every requested range up to the next hardware
// step. Requests beyond the largest step are clamped to it and logged.
func NewRangeReport(r SensorRange, commandID uint16) RangeReport {
	rr := RangeReport{CommandID: commandID}
	var clamped bool

	var v uint16
	v, clamped = selectRampValue(accelRangeRamp, r.MaxAcceleration*accelFactor)
	rr.AccelScale = uint8(v)
	if clamped {
		rr.Clamped = append(rr.Clamped, "acceleration")
	}
	rr.GyroScale, clamped = selectRampValue(gyroRangeRamp, r.MaxRotationRate*gyroFactor)
	if clamped {
		rr.Clamped = append(rr.Clamped, "rotation rate")
	}
	rr.MagScale, clamped = selectRampValue(magRangeRamp, r.MaxMagneticField*magFactor)
	if clamped {
		rr.Clamped = append(rr.Clamped, "magnetic field")
	}

	for _, name := range rr.Clamped {
		Logf("report: %s range request exceeds hardware maximum, clamped", name)
	}
	return rr
}

func selectRampValue(ramp []uint16, val float64) (uint16, bool) {
	threshold := math.Ceil(val - rampSlack)
	for _, step := range ramp {
		if float64(step) >= threshold {
			return step, false
		}
	}
	return ramp[len(ramp)-1], true
}

// SensorRange converts the report back into SI units.
func (r RangeReport) SensorRange() SensorRange {
	return SensorRange{
		MaxAcceleration:  float64(r.AccelScale) * Gravity,
		MaxRotationRate:  float64(r.GyroScale) / gyroFactor,
		MaxMagneticField: float64(r.MagScale) / magFactor,
	}
}

// Pack returns the 8-byte feature report.
func (r RangeReport) Pack() []byte {
	buf := make([]byte, RangeSize)
	buf[0] = FeatureRange
	binary.LittleEndian.PutUint16(buf[1:], r.CommandID)
	buf[3] = r.AccelScale
	binary.LittleEndian.PutUint16(buf[4:], r.GyroScale)
	binary.LittleEndian.PutUint16(buf[6:], r.MagScale)
	return buf
}

// UnpackRange parses a range feature report as read back from the device.
func UnpackRange(buf []byte) (RangeReport, error) {
	if len(buf) < RangeSize {
		return RangeReport{}, &SizeError{Type: FeatureRange, Need: RangeSize, Got: len(buf)}
	}
	return RangeReport{
		CommandID:  binary.LittleEndian.Uint16(buf[1:]),
		AccelScale: buf[3],
		GyroScale:  binary.LittleEndian.Uint16(buf[4:]),
		MagScale:   binary.LittleEndian.Uint16(buf[6:]),
	}, nil
}

// ConfigFlags select how the device filters and reports samples.
type ConfigFlags uint8

const (
	FlagRawMode           ConfigFlags = 0x01
	FlagCalibrationTest   ConfigFlags = 0x02
	FlagUseCalibration    ConfigFlags = 0x04
	FlagAutoCalibration   ConfigFlags = 0x08
	FlagMotionKeepAlive   ConfigFlags = 0x10
	FlagCommandKeepAlive  ConfigFlags = 0x20
	FlagSensorCoordinates ConfigFlags = 0x40
)

// SensorConfig is the config feature report.
type SensorConfig struct {
	CommandID uint16
	Flags     ConfigFlags
	// PacketInterval is the number of samples folded into one report,
	// minus one.
	PacketInterval uint8
	// KeepAliveInterval is in milliseconds.
	KeepAliveInterval uint16
}

// SetSensorCoordinates selects sensor (true) or HMD (false) coordinates
// without touching the other flags.
func (c *SensorConfig) SetSensorCoordinates(on bool) {
	if on {
		c.Flags |= FlagSensorCoordinates
	} else {
		c.Flags &^= FlagSensorCoordinates
	}
}

// IsUsingSensorCoordinates reports whether samples arrive in the sensor frame.
func (c SensorConfig) IsUsingSensorCoordinates() bool {
	return c.Flags&FlagSensorCoordinates != 0
}

// Pack returns the 7-byte feature report.
func (c SensorConfig) Pack() []byte {
	buf := make([]byte, ConfigSize)
	buf[0] = FeatureConfig
	binary.LittleEndian.PutUint16(buf[1:], c.CommandID)
	buf[3] = byte(c.Flags)
	buf[4] = c.PacketInterval
	binary.LittleEndian.PutUint16(buf[5:], c.KeepAliveInterval)
	return buf
}

// UnpackConfig parses a config feature report.
func UnpackConfig(buf []byte) (SensorConfig, error) {
	if len(buf) < ConfigSize {
		return SensorConfig{}, &SizeError{Type: FeatureConfig, Need: ConfigSize, Got: len(buf)}
	}
	return SensorConfig{
		CommandID:         binary.LittleEndian.Uint16(buf[1:]),
		Flags:             ConfigFlags(buf[3]),
		PacketInterval:    buf[4],
		KeepAliveInterval: binary.LittleEndian.Uint16(buf[5:]),
	}, nil
}

// KeepAlive asks the device to keep streaming for Interval milliseconds.
type KeepAlive struct {
	CommandID uint16
	Interval  uint16
}

// Pack returns the 5-byte feature report.
func (k KeepAlive) Pack() []byte {
	buf := make([]byte, KeepAliveSize)
	buf[0] = FeatureKeepAlive
	binary.LittleEndian.PutUint16(buf[1:], k.CommandID)
	binary.LittleEndian.PutUint16(buf[3:], k.Interval)
	return buf
}

// UnpackKeepAlive parses a keep-alive feature report.
func UnpackKeepAlive(buf []byte) (KeepAlive, error) {
	if len(buf) < KeepAliveSize {
		return KeepAlive{}, &SizeError{Type: FeatureKeepAlive, Need: KeepAliveSize, Got: len(buf)}
	}
	return KeepAlive{
		CommandID: binary.LittleEndian.Uint16(buf[1:]),
		Interval:  binary.LittleEndian.Uint16(buf[3:]),
	}, nil
}
