// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package filter

import (
	"math"

	"github.com/relabs-tech/head_tracker/internal/geom"
)

// VectorFilter adds per-axis statistics to a Filter of 3-vectors. The
// statistics are recomputed over the held elements on every call.
type VectorFilter struct {
	Filter[geom.Vector3]
}

// NewVectorFilter returns an empty VectorFilter.
func NewVectorFilter(capacity int) *VectorFilter {
	return &VectorFilter{Filter: *New[geom.Vector3](capacity)}
}

// held returns the stored elements, newest first.
func (f *VectorFilter) held() []geom.Vector3 {
	out := make([]geom.Vector3, f.Count())
	for i := range out {
		out[i] = f.GetPrev(i)
	}
	return out
}

// Median is taken independently on each axis with a partial selection
// sort up to the middle element.
func (f *VectorFilter) Median() geom.Vector3 {
	n := f.Count()
	if n == 0 {
		return geom.Vector3{}
	}
	half := n / 2
	xs := make([]float64, n)
	ys := make([]float64, n)
	zs := make([]float64, n)
	for i, v := range f.held() {
		xs[i], ys[i], zs[i] = v.X, v.Y, v.Z
	}
	for _, axis := range [][]float64{xs, ys, zs} {
		for j := 0; j <= half; j++ {
			lo := j
			for k := j + 1; k < n; k++ {
				if axis[k] < axis[lo] {
					lo = k
				}
			}
			axis[j], axis[lo] = axis[lo], axis[j]
		}
	}
	return geom.Vec3(xs[half], ys[half], zs[half])
}

// Variance is the diagonal of Covariance.
func (f *VectorFilter) Variance() geom.Vector3 {
	n := f.Count()
	if n == 0 {
		return geom.Vector3{}
	}
	mean := f.Mean()
	var total geom.Vector3
	for _, v := range f.held() {
		d := v.Sub(mean)
		total = total.Add(d.EntrywiseMultiply(d))
	}
	return total.Div(float64(n))
}

// Covariance returns the symmetric 3x3 covariance of the axes in the
// upper-left block of a Matrix4.
func (f *VectorFilter) Covariance() geom.Matrix4 {
	n := f.Count()
	var c [3][3]float64
	if n > 0 {
		mean := f.Mean()
		for _, v := range f.held() {
			d := v.Sub(mean)
			dv := [3]float64{d.X, d.Y, d.Z}
			for r := 0; r < 3; r++ {
				for k := 0; k <= r; k++ {
					c[r][k] += dv[r] * dv[k]
				}
			}
		}
		for r := 0; r < 3; r++ {
			for k := 0; k <= r; k++ {
				c[r][k] /= float64(n)
				c[k][r] = c[r][k]
			}
		}
	}
	return geom.NewMatrix3(
		c[0][0], c[0][1], c[0][2],
		c[1][0], c[1][1], c[1][2],
		c[2][0], c[2][1], c[2][2],
	)
}

// PearsonCoefficient returns the correlation of X with Y, Y with Z and
// Z with X. An axis with no variance yields NaN for its pairs.
func (f *VectorFilter) PearsonCoefficient() geom.Vector3 {
	cov := f.Covariance()
	sx := math.Sqrt(cov.At(0, 0))
	sy := math.Sqrt(cov.At(1, 1))
	sz := math.Sqrt(cov.At(2, 2))
	return geom.Vec3(
		cov.At(0, 1)/(sx*sy),
		cov.At(1, 2)/(sy*sz),
		cov.At(2, 0)/(sz*sx),
	)
}
