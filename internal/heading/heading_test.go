// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package heading

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	r, ok, err := ParseLine("$HEHDT,274.07,T*19\r\n")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "HDT", r.Source)
	assert.InDelta(t, 274.07, r.Heading, 1e-9)

	r, ok, err = ParseLine("$HCHDG,98.3,0.0,E,12.6,W*57")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "HDG", r.Source)
	assert.InDelta(t, 85.7, r.Heading, 1e-9)

	_, ok, err = ParseLine("not nmea")
	assert.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = ParseLine("$HEHDT,274.07,T*00")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestWrap(t *testing.T) {
	assert.InDelta(t, 350, Wrap360(-10), 1e-9)
	assert.InDelta(t, 10, Wrap360(370), 1e-9)
	assert.InDelta(t, 0, Wrap360(360), 1e-9)
	assert.InDelta(t, -170, Wrap180(190), 1e-9)
	assert.InDelta(t, 170, Wrap180(-190), 1e-9)
	assert.InDelta(t, 90, FromYaw(-90), 1e-9)
	assert.InDelta(t, 270, FromYaw(90), 1e-9)
}

func TestDriftTracker(t *testing.T) {
	var dt DriftTracker

	// first reading aligns: tracker yaw 0 means whatever the compass says
	d := dt.Update(Reading{Heading: 350, Source: "HDT"}, 0)
	assert.InDelta(t, -10, d.Offset, 1e-9)
	assert.InDelta(t, 0, d.Drift, 1e-9)

	// head turns 20 degrees right, compass agrees
	d = dt.Update(Reading{Heading: 10}, -20)
	assert.InDelta(t, 0, d.Drift, 1e-9)

	// fused yaw lags by 3 degrees
	d = dt.Update(Reading{Heading: 15}, -22)
	assert.InDelta(t, 3, d.Drift, 1e-9)
	assert.InDelta(t, 3, d.MaxDrift, 1e-9)

	d = dt.Update(Reading{Heading: 15}, -24)
	assert.InDelta(t, 1, d.Drift, 1e-9)
	assert.InDelta(t, 3, d.MaxDrift, 1e-9)
	assert.Equal(t, d, dt.Last())

	dt.Realign()
	d = dt.Update(Reading{Heading: 100}, 0)
	assert.InDelta(t, 0, d.Drift, 1e-9)
	assert.InDelta(t, 0, d.MaxDrift, 1e-9)
}

func TestMonitor(t *testing.T) {
	input := strings.Join([]string{
		"27.07,T*19", // tail of a sentence cut by the read start
		"$HEHDT,274.07,T*19",
		"$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A",
		"$HCHDG,98.3,0.0,E,12.6,W*57",
	}, "\r\n")

	var got []Reading
	err := Monitor(strings.NewReader(input), func(r Reading) { got = append(got, r) })
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.InDelta(t, 274.07, got[0].Heading, 1e-9)
	assert.InDelta(t, 85.7, got[1].Heading, 1e-9)
	assert.False(t, got[0].Time.IsZero())
}
