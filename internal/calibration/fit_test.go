// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/head_tracker/internal/geom"
)

// ellipsoidSamples spreads n directions over the sphere on a Fibonacci
// lattice and distorts them into an ellipsoid.
func ellipsoidSamples(n int, center, radii geom.Vector3) []geom.Vector3 {
	golden := math.Pi * (3 - math.Sqrt(5))
	out := make([]geom.Vector3, n)
	for i := range out {
		y := 1 - 2*(float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - y*y)
		phi := golden * float64(i)
		u := geom.Vec3(r*math.Cos(phi), y, r*math.Sin(phi))
		out[i] = center.Add(u.EntrywiseMultiply(radii))
	}
	return out
}

func TestFitMagnetometerEllipsoid(t *testing.T) {
	center := geom.Vec3(0.1, -0.2, 0.05)
	radii := geom.Vec3(0.5, 0.4, 0.6)
	samples := ellipsoidSamples(200, center, radii)

	fit, err := FitMagnetometer(samples)
	require.NoError(t, err)
	assert.Equal(t, MethodEllipsoid, fit.Method)
	assert.True(t, fit.Offset.Compare(center, 1e-6), "offset %v", fit.Offset)
	assert.InDelta(t, math.Cbrt(0.5*0.4*0.6), fit.FieldStrength, 1e-6)
	assert.Less(t, fit.Residual, 1e-6)
	assert.Equal(t, 200, fit.Samples)
	assert.InDelta(t, 0.4/0.6*100, fit.Confidence, 1)

	for _, s := range samples[:20] {
		assert.InDelta(t, fit.FieldStrength, fit.Matrix.Transform(s).Length(), 1e-6)
	}
}

func TestFitMagnetometerRejects(t *testing.T) {
	_, err := FitMagnetometer(ellipsoidSamples(MinFitSamples-1, geom.Vector3{}, geom.Vec3(1, 1, 1)))
	assert.ErrorIs(t, err, ErrTooFewSamples)

	flat := make([]geom.Vector3, 50)
	for i := range flat {
		a := float64(i) * 0.3
		flat[i] = geom.Vec3(math.Cos(a), math.Sin(a), 0.2)
	}
	_, err = FitMagnetometer(flat)
	assert.ErrorIs(t, err, ErrDegenerate)
}

func TestFitMinMax(t *testing.T) {
	fit := fitMinMax(geom.Vec3(-1, -2, 0), geom.Vec3(3, 2, 1))
	assert.Equal(t, MethodMinMax, fit.Method)
	assert.True(t, fit.Offset.Compare(geom.Vec3(1, 0, 0.5), 1e-12))
	assert.True(t, fit.Scale.Compare(geom.Vec3(0.75, 0.75, 3), 1e-12))
	assert.InDelta(t, 1.5, fit.FieldStrength, 1e-12)

	m := correctionMatrix(fit.Offset, fit.Scale)
	assert.True(t, m.Transform(geom.Vec3(3, 0, 0.5)).Compare(geom.Vec3(1.5, 0, 0), 1e-12))
}
