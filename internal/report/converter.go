// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package report

import (
	"github.com/relabs-tech/head_tracker/internal/geom"
)

const (
	// TimeUnit is the duration of one timestamp tick in seconds.
	TimeUnit = 0.001

	// MaxGapTicks is the longest timestamp gap filled in as dropped
	// samples. Longer gaps are treated as a lost stream.
	MaxGapTicks = 254

	sensorScale      = 0.0001
	temperatureScale = 0.01
)

// Sample is one calibrated reading in SI units: m/s², rad/s, gauss, °C
// and seconds since the previous sample.
type Sample struct {
	Acceleration  geom.Vector3 `json:"acceleration"`
	RotationRate  geom.Vector3 `json:"rotation_rate"`
	MagneticField geom.Vector3 `json:"magnetic_field"`
	Temperature   float64      `json:"temperature"`
	TimeDelta     float64      `json:"time_delta"`
}

// ConverterOptions select the axis mapping applied to raw readings.
type ConverterOptions struct {
	// SwapMagYZ undoes the firmware's Y/Z swap on the magnetometer.
	SwapMagYZ bool
	// ConvertHMDToSensor maps readings from the headset frame into the
	// sensor board frame.
	ConvertHMDToSensor bool
}

// DefaultConverterOptions matches the tracker's stock firmware.
var DefaultConverterOptions = ConverterOptions{SwapMagYZ: true}

// Converter turns decoded sensor reports into Samples, replaying the last
// reading for samples the device reported as dropped. It is not safe for
// concurrent use.
type Converter struct {
	opts ConverterOptions

	sequenceValid   bool
	lastSampleCount uint8
	lastTimestamp   uint16
	last            Sample
}

// NewConverter returns a Converter whose sequence is not yet established.
func NewConverter(opts ConverterOptions) *Converter {
	return &Converter{opts: opts}
}

// Reset forgets the sequence; the next report restarts it without any
// gap compensation.
func (c *Converter) Reset() {
	c.sequenceValid = false
	c.lastSampleCount = 0
	c.lastTimestamp = 0
	c.last = Sample{}
}

// Convert returns the samples carried by s in arrival order, preceded by
// at most one replicated sample covering a detected gap.
func (c *Converter) Convert(s TrackerSensors) []Sample {
	out := make([]Sample, 0, maxSamples+1)

	if !c.sequenceValid {
		c.lastSampleCount = 0
		c.lastTimestamp = 0
		c.last = Sample{}
		c.sequenceValid = true
	} else {
		// uint16 subtraction wraps the same way the device counter does
		delta := int(s.Timestamp - c.lastTimestamp)
		switch {
		case delta > MaxGapTicks:
			// Resync silently: this report starts a fresh sequence.
			c.Reset()
			c.sequenceValid = true
		case delta > int(c.lastSampleCount):
			fill := c.last
			fill.TimeDelta = float64(delta-int(c.lastSampleCount)) * TimeUnit
			out = append(out, fill)
		}
	}

	mag := c.magnetometer(s)
	temperature := float64(s.Temperature) * temperatureScale

	first := TimeUnit
	if s.SampleCount > maxSamples {
		first = float64(int(s.SampleCount)-maxSamples+1) * TimeUnit
	}

	for i := 0; i < s.Iterations(); i++ {
		smp := Sample{
			Acceleration:  c.axes(s.Samples[i].Accel),
			RotationRate:  c.axes(s.Samples[i].Gyro),
			MagneticField: mag,
			Temperature:   temperature,
			TimeDelta:     TimeUnit,
		}
		if i == 0 {
			smp.TimeDelta = first
		}
		out = append(out, smp)
		c.last = smp
	}

	c.lastSampleCount = s.SampleCount
	c.lastTimestamp = s.Timestamp
	return out
}

func (c *Converter) axes(v Vec3i) geom.Vector3 {
	x := float64(v.X) * sensorScale
	y := float64(v.Y) * sensorScale
	z := float64(v.Z) * sensorScale
	if c.opts.ConvertHMDToSensor {
		return geom.Vec3(x, z, -y)
	}
	return geom.Vec3(x, y, z)
}

func (c *Converter) magnetometer(s TrackerSensors) geom.Vector3 {
	x := float64(s.MagX) * sensorScale
	y := float64(s.MagY) * sensorScale
	z := float64(s.MagZ) * sensorScale
	if c.opts.SwapMagYZ {
		y, z = z, y
	}
	if c.opts.ConvertHMDToSensor {
		return geom.Vec3(x, z, -y)
	}
	return geom.Vec3(x, y, z)
}
