// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package geom

import (
	"fmt"
	"strconv"
	"strings"
)

// Matrix4 is a row-major 4x4 matrix stored flat: element (r, c) lives at
// M[r*4+c]. Basis vectors are the first three columns and the translation
// is the last column of the first three rows. Calibration tooling
// exchanges these 16 coefficients verbatim, so the layout is fixed.
type Matrix4 struct {
	M [16]float64
}

// Identity4 returns the identity matrix.
func Identity4() Matrix4 {
	return Matrix4{M: [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// NewMatrix4 takes its arguments row by row.
func NewMatrix4(
	m11, m12, m13, m14,
	m21, m22, m23, m24,
	m31, m32, m33, m34,
	m41, m42, m43, m44 float64,
) Matrix4 {
	return Matrix4{M: [16]float64{
		m11, m12, m13, m14,
		m21, m22, m23, m24,
		m31, m32, m33, m34,
		m41, m42, m43, m44,
	}}
}

// NewMatrix3 builds a linear transform with no translation.
func NewMatrix3(
	m11, m12, m13,
	m21, m22, m23,
	m31, m32, m33 float64,
) Matrix4 {
	return NewMatrix4(
		m11, m12, m13, 0,
		m21, m22, m23, 0,
		m31, m32, m33, 0,
		0, 0, 0, 1,
	)
}

func (m Matrix4) At(r, c int) float64 { return m.M[r*4+c] }

// With returns a copy of m with (r, c) set to v.
func (m Matrix4) With(r, c int, v float64) Matrix4 {
	m.M[r*4+c] = v
	return m
}

func (m Matrix4) Add(b Matrix4) Matrix4 {
	for i := range m.M {
		m.M[i] += b.M[i]
	}
	return m
}

func (m Matrix4) Sub(b Matrix4) Matrix4 {
	for i := range m.M {
		m.M[i] -= b.M[i]
	}
	return m
}

func (m Matrix4) Scale(s float64) Matrix4 {
	for i := range m.M {
		m.M[i] *= s
	}
	return m
}

func (m Matrix4) Div(s float64) Matrix4 { return m.Scale(1 / s) }

// Mul returns m*b.
func (m Matrix4) Mul(b Matrix4) Matrix4 {
	var r Matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			r.M[i*4+j] = m.At(i, 0)*b.At(0, j) +
				m.At(i, 1)*b.At(1, j) +
				m.At(i, 2)*b.At(2, j) +
				m.At(i, 3)*b.At(3, j)
		}
	}
	return r
}

// Transform applies m to the point v, translation included.
func (m Matrix4) Transform(v Vector3) Vector3 {
	return Vector3{
		X: m.At(0, 0)*v.X + m.At(0, 1)*v.Y + m.At(0, 2)*v.Z + m.At(0, 3),
		Y: m.At(1, 0)*v.X + m.At(1, 1)*v.Y + m.At(1, 2)*v.Z + m.At(1, 3),
		Z: m.At(2, 0)*v.X + m.At(2, 1)*v.Y + m.At(2, 2)*v.Z + m.At(2, 3),
	}
}

func (m Matrix4) Transposed() Matrix4 {
	var t Matrix4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			t.M[c*4+r] = m.M[r*4+c]
		}
	}
	return t
}

// Translation returns the last column of the first three rows.
func (m Matrix4) Translation() Vector3 {
	return Vector3{m.At(0, 3), m.At(1, 3), m.At(2, 3)}
}

// Compare reports whether every element matches within tol.
func (m Matrix4) Compare(b Matrix4, tol float64) bool {
	for i := range m.M {
		d := m.M[i] - b.M[i]
		if d < 0 {
			d = -d
		}
		if d >= tol {
			return false
		}
	}
	return true
}

// String writes the 16 coefficients row-major, space separated. This is
// the form calibration profiles store.
func (m Matrix4) String() string {
	parts := make([]string, len(m.M))
	for i, v := range m.M {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

// ParseMatrix4 reads the output of String.
func ParseMatrix4(s string) (Matrix4, error) {
	fields := strings.Fields(s)
	if len(fields) != 16 {
		return Matrix4{}, fmt.Errorf("matrix: want 16 coefficients, got %d", len(fields))
	}
	var m Matrix4
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Matrix4{}, fmt.Errorf("matrix: coefficient %d: %w", i, err)
		}
		m.M[i] = v
	}
	return m, nil
}
