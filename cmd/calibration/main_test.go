// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/head_tracker/internal/device"
	"github.com/relabs-tech/head_tracker/internal/geom"
	"github.com/relabs-tech/head_tracker/internal/report"
)

func TestComputeStats(t *testing.T) {
	values := []geom.Vector3{
		geom.Vec3(1, 0, -2),
		geom.Vec3(3, 0, -2),
		geom.Vec3(1, 0, -2),
		geom.Vec3(3, 0, -2),
	}
	st := computeStats(values, 2*time.Second)
	assert.Equal(t, 4, st.Samples)
	assert.InDelta(t, 2.0, st.DurationSec, 1e-9)
	assert.InDelta(t, 2.0, st.Mean.X, 1e-9)
	assert.InDelta(t, -2.0, st.Mean.Z, 1e-9)
	assert.InDelta(t, 1.0, st.StdDev.X, 1e-9)
	assert.InDelta(t, 0.0, st.StdDev.Y, 1e-9)

	empty := computeStats(nil, time.Second)
	assert.Equal(t, 0, empty.Samples)
}

func TestStillnessConfidence(t *testing.T) {
	assert.Equal(t, 1.0, stillnessConfidence(geom.Vec3(0.001, 0.001, 0.001)))
	assert.Equal(t, confFloor, stillnessConfidence(geom.Vec3(0.1, 0.1, 0.1)))

	mid := stillnessConfidence(geom.Vec3(0.011, 0.011, 0.011))
	assert.Greater(t, mid, confFloor)
	assert.Less(t, mid, 1.0)
}

func TestReaderAndPickers(t *testing.T) {
	dev := device.NewMock(device.MockOptions{})
	defer dev.Close()
	readFn := newReader(dev, report.NewConverter(report.DefaultConverterOptions))

	// The first report establishes the sequence and carries its samples.
	samples, err := readFn()
	require.NoError(t, err)
	require.NotEmpty(t, samples)

	assert.Len(t, rotationRates(samples), len(samples))
	fields := lastField(samples)
	require.Len(t, fields, 1)
	assert.Equal(t, samples[len(samples)-1].MagneticField, fields[0])
	assert.Nil(t, lastField(nil))
}

func TestOverallConfidence(t *testing.T) {
	assert.InDelta(t, 1.0, overallConfidence(1, 1), 1e-9)
	assert.InDelta(t, 0.3, overallConfidence(1, 0), 1e-9)
}
