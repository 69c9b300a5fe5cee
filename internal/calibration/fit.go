// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/head_tracker/internal/geom"
)

// MinFitSamples is the fewest raw readings FitMagnetometer accepts.
const MinFitSamples = 12

var (
	ErrTooFewSamples = errors.New("calibration: too few magnetometer samples")
	ErrDegenerate    = errors.New("calibration: samples do not span the sphere")
)

// Fit methods.
const (
	MethodEllipsoid = "ellipsoid"
	MethodMinMax    = "minmax"
)

// Fit is a hard- and soft-iron magnetometer calibration fitted from raw
// readings taken while the tracker was turned through many orientations.
type Fit struct {
	Method string `json:"method"`
	// Matrix maps a raw reading onto a sphere of radius FieldStrength
	// centred on the origin.
	Matrix        geom.Matrix4 `json:"matrix"`
	Offset        geom.Vector3 `json:"offset"`
	Scale         geom.Vector3 `json:"scale"`
	Range         geom.Vector3 `json:"range"`
	FieldStrength float64      `json:"field_strength"`
	// Residual is the RMS spread of corrected magnitudes relative to
	// FieldStrength.
	Residual float64 `json:"residual"`
	// Confidence is the smallest axis range as a percentage of the
	// largest. Low values mean some axis was barely rotated through.
	Confidence float64 `json:"confidence"`
	Samples    int     `json:"samples"`
}

// FitMagnetometer fits an axis-aligned ellipsoid
//
//	a·x² + b·y² + c·z² + d·x + e·y + f·z = 1
//
// to the readings by linear least squares. When the fit is not an
// ellipsoid it falls back to the per-axis min/max estimate.
func FitMagnetometer(samples []geom.Vector3) (Fit, error) {
	if len(samples) < MinFitSamples {
		return Fit{}, fmt.Errorf("%w: have %d, need %d", ErrTooFewSamples, len(samples), MinFitSamples)
	}

	lo, hi := bounds(samples)
	rng := hi.Sub(lo)
	if rng.X <= 0 || rng.Y <= 0 || rng.Z <= 0 {
		return Fit{}, ErrDegenerate
	}

	fit, err := fitEllipsoid(samples)
	if err != nil {
		fit = fitMinMax(lo, hi)
	}
	fit.Range = rng
	fit.Samples = len(samples)
	fit.Confidence = math.Min(rng.X, math.Min(rng.Y, rng.Z)) / math.Max(rng.X, math.Max(rng.Y, rng.Z)) * 100
	fit.Matrix = correctionMatrix(fit.Offset, fit.Scale)
	fit.Residual = residual(samples, fit.Matrix, fit.FieldStrength)
	return fit, nil
}

func bounds(samples []geom.Vector3) (lo, hi geom.Vector3) {
	lo = geom.Vec3(math.MaxFloat64, math.MaxFloat64, math.MaxFloat64)
	hi = lo.Neg()
	for _, s := range samples {
		lo = geom.Vec3(math.Min(lo.X, s.X), math.Min(lo.Y, s.Y), math.Min(lo.Z, s.Z))
		hi = geom.Vec3(math.Max(hi.X, s.X), math.Max(hi.Y, s.Y), math.Max(hi.Z, s.Z))
	}
	return lo, hi
}

func fitEllipsoid(samples []geom.Vector3) (Fit, error) {
	n := len(samples)
	design := mat.NewDense(n, 6, nil)
	ones := mat.NewVecDense(n, nil)
	for i, s := range samples {
		design.SetRow(i, []float64{s.X * s.X, s.Y * s.Y, s.Z * s.Z, s.X, s.Y, s.Z})
		ones.SetVec(i, 1)
	}

	var p mat.VecDense
	if err := p.SolveVec(design, ones); err != nil {
		return Fit{}, fmt.Errorf("calibration: ellipsoid least squares: %w", err)
	}
	a, b, c := p.AtVec(0), p.AtVec(1), p.AtVec(2)
	if a <= 0 || b <= 0 || c <= 0 {
		return Fit{}, ErrDegenerate
	}
	center := geom.Vec3(-p.AtVec(3)/(2*a), -p.AtVec(4)/(2*b), -p.AtVec(5)/(2*c))
	g := 1 + a*center.X*center.X + b*center.Y*center.Y + c*center.Z*center.Z
	if g <= 0 {
		return Fit{}, ErrDegenerate
	}

	radii := geom.Vec3(math.Sqrt(g/a), math.Sqrt(g/b), math.Sqrt(g/c))
	strength := math.Cbrt(radii.X * radii.Y * radii.Z)
	return Fit{
		Method:        MethodEllipsoid,
		Offset:        center,
		Scale:         geom.Vec3(strength/radii.X, strength/radii.Y, strength/radii.Z),
		FieldStrength: strength,
	}, nil
}

// fitMinMax centres each axis between its extremes and equalises the
// ranges to their mean.
func fitMinMax(lo, hi geom.Vector3) Fit {
	rng := hi.Sub(lo)
	avg := (rng.X + rng.Y + rng.Z) / 3
	return Fit{
		Method:        MethodMinMax,
		Offset:        lo.Add(hi).Scale(0.5),
		Scale:         geom.Vec3(avg/rng.X, avg/rng.Y, avg/rng.Z),
		FieldStrength: avg / 2,
	}
}

func correctionMatrix(offset, scale geom.Vector3) geom.Matrix4 {
	return geom.NewMatrix3(
		scale.X, 0, 0,
		0, scale.Y, 0,
		0, 0, scale.Z,
	).
		With(0, 3, -scale.X*offset.X).
		With(1, 3, -scale.Y*offset.Y).
		With(2, 3, -scale.Z*offset.Z)
}

func residual(samples []geom.Vector3, m geom.Matrix4, strength float64) float64 {
	if strength == 0 {
		return math.Inf(1)
	}
	var sum float64
	for _, s := range samples {
		d := m.Transform(s).Length()/strength - 1
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(samples)))
}
