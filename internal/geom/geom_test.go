// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package geom

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertVec(t *testing.T, want, got Vector3, tol float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, "x")
	assert.InDelta(t, want.Y, got.Y, tol, "y")
	assert.InDelta(t, want.Z, got.Z, tol, "z")
}

var testAxes = []Vector3{
	Vec3(1, 0, 0),
	Vec3(0, 1, 0),
	Vec3(0, 0, 1),
	Vec3(1, 1, 1).Normalized(),
	Vec3(-0.3, 0.8, 0.2).Normalized(),
	Vec3(0.01, -1, 0.5).Normalized(),
}

var testAngles = []float64{0, 0.1, -0.7, math.Pi / 2, 2.5, math.Pi, -3}

func TestVectorBasics(t *testing.T) {
	a := Vec3(1, 2, 3)
	b := Vec3(-2, 0.5, 4)

	assert.Equal(t, Vec3(-1, 2.5, 7), a.Add(b))
	assert.Equal(t, Vec3(3, 1.5, -1), a.Sub(b))
	assert.InDelta(t, 11.0, a.Dot(b), 1e-12)
	assertVec(t, Vec3(2*4-3*0.5, 3*-2-1*4, 1*0.5-2*-2), a.Cross(b), 1e-12)
	assert.InDelta(t, 0.0, a.Cross(b).Dot(a), 1e-9)
	assert.True(t, Vec3(3, 0, 4).Normalized().IsNormalized())
	assert.InDelta(t, 5.0, Vec3(0, 3, 4).Distance(Vector3{}), 1e-12)
	assertVec(t, Vec3(0.5, 1, 1.5), Vector3{}.Lerp(a, 0.5), 1e-12)
	assert.True(t, a.Compare(Vec3(1, 2, 3.000001), Tolerance))
	assert.Equal(t, Vec3(-2, 1, 12), a.EntrywiseMultiply(b))
}

func TestVectorProjection(t *testing.T) {
	v := Vec3(3, 4, 5)
	up := Vec3(0, 2, 0)

	assertVec(t, Vec3(0, 4, 0), v.ProjectTo(up), 1e-12)
	assertVec(t, Vec3(3, 0, 5), v.ProjectToPlane(up), 1e-12)
	assert.InDelta(t, math.Pi/2, Vec3(1, 0, 0).Angle(Vec3(0, 0, 7)), 1e-12)
	assert.InDelta(t, 0.0, Vec3(0, 9.81, 0).Angle(Vec3(0, 1, 0)), 1e-7)
}

func TestZeroLengthPanics(t *testing.T) {
	assert.Panics(t, func() { Vector3{}.Normalized() })
	assert.Panics(t, func() { Quaternion{}.Normalized() })
	assert.Panics(t, func() { Vec3(1, 0, 0).Angle(Vector3{}) })
	assert.Panics(t, func() { Vec3(1, 0, 0).ProjectTo(Vector3{}) })
}

func TestRotateAboutOwnAxis(t *testing.T) {
	for _, u := range testAxes {
		for _, theta := range testAngles {
			got := QuatFromAxisAngle(u, theta).Rotate(u)
			assertVec(t, u, got, 1e-5)
		}
	}
}

func TestRotateHandedness(t *testing.T) {
	// +90° around Z takes X to Y, counter-clockwise seen from +Z.
	q := QuatFromAxisAngle(Vec3(0, 0, 1), math.Pi/2)
	assertVec(t, Vec3(0, 1, 0), q.Rotate(Vec3(1, 0, 0)), 1e-12)

	// +90° around Y takes Z to X.
	q = QuatFromAxisAngle(Vec3(0, 1, 0), math.Pi/2)
	assertVec(t, Vec3(1, 0, 0), q.Rotate(Vec3(0, 0, 1)), 1e-12)

	// AxisAngle with CW/left-handed flips direction.
	assert.InDelta(t, 0.0, AxisAngle(AxisZ, 0.4, CCW, RightHanded).Distance(QuatFromAxisAngle(Vec3(0, 0, 1), 0.4)), 1e-12)
	assert.InDelta(t, 0.0, AxisAngle(AxisZ, 0.4, CW, RightHanded).Distance(QuatFromAxisAngle(Vec3(0, 0, 1), -0.4)), 1e-12)
}

func TestRotateMatchesMatrix(t *testing.T) {
	v := Vec3(0.3, -1.2, 2)
	for _, u := range testAxes {
		for _, theta := range testAngles {
			q := QuatFromAxisAngle(u, theta)
			assertVec(t, Matrix4FromQuat(q).Transform(v), q.Rotate(v), 1e-9)
		}
	}
}

func TestMatrixQuaternionRoundTrip(t *testing.T) {
	for _, u := range testAxes {
		for _, theta := range testAngles {
			m := Matrix4FromQuat(QuatFromAxisAngle(u, theta))
			back := Matrix4FromQuat(QuatFromMatrix4(m))
			assert.True(t, m.Compare(back, 1e-4), "axis %v angle %v:\n%v\n%v", u, theta, m, back)
		}
	}
}

func TestQuaternionComposition(t *testing.T) {
	a := QuatFromAxisAngle(Vec3(0, 1, 0), 0.3)
	b := QuatFromAxisAngle(Vec3(1, 0, 0), 0.6)
	v := Vec3(0.2, 0.4, -1)

	// a*b applies b first.
	assertVec(t, a.Rotate(b.Rotate(v)), a.Mul(b).Rotate(v), 1e-12)
	assert.InDelta(t, 0.0, a.Mul(a.Inverted()).Distance(IdentityQuat()), 1e-12)
	assert.InDelta(t, 0.0, a.PowNormalized(2).Distance(a.Mul(a)), 1e-9)
	// antipodal quaternions are the same rotation
	assert.InDelta(t, 0.0, a.Distance(a.Scale(-1)), 1e-12)

	axis, angle := b.GetAxisAngle()
	assertVec(t, Vec3(1, 0, 0), axis, 1e-12)
	assert.InDelta(t, 0.6, angle, 1e-12)

	axis, angle = IdentityQuat().GetAxisAngle()
	assert.Equal(t, Vec3(1, 0, 0), axis)
	assert.Equal(t, 0.0, angle)
}

func TestYawPitchRoll(t *testing.T) {
	t.Run("pure yaw", func(t *testing.T) {
		yaw, pitch, roll := QuatFromAxisAngle(Vec3(0, 1, 0), 0.3).YawPitchRoll()
		assert.InDelta(t, 0.3, yaw, 1e-9)
		assert.InDelta(t, 0.0, pitch, 1e-9)
		assert.InDelta(t, 0.0, roll, 1e-9)
	})
	t.Run("pure pitch", func(t *testing.T) {
		yaw, pitch, roll := QuatFromAxisAngle(Vec3(1, 0, 0), -0.25).YawPitchRoll()
		assert.InDelta(t, 0.0, yaw, 1e-9)
		assert.InDelta(t, -0.25, pitch, 1e-9)
		assert.InDelta(t, 0.0, roll, 1e-9)
	})
	t.Run("composed", func(t *testing.T) {
		q := QuatFromAxisAngle(Vec3(0, 1, 0), 0.5).
			Mul(QuatFromAxisAngle(Vec3(1, 0, 0), 0.2)).
			Mul(QuatFromAxisAngle(Vec3(0, 0, 1), -0.4))
		yaw, pitch, roll := q.YawPitchRoll()
		assert.InDelta(t, 0.5, yaw, 1e-9)
		assert.InDelta(t, 0.2, pitch, 1e-9)
		assert.InDelta(t, -0.4, roll, 1e-9)
	})
}

func TestMatrixOps(t *testing.T) {
	m := NewMatrix4(
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
		0, 0, 0, 1,
	)
	assert.Equal(t, m, m.Mul(Identity4()))
	assert.Equal(t, m, Identity4().Mul(m))
	assert.Equal(t, m, m.Transposed().Transposed())
	assert.Equal(t, 9.0, m.Transposed().At(0, 2))
	assert.Equal(t, Vec3(4, 8, 12), m.Translation())
	assertVec(t, Vec3(1+2+3+4, 5+6+7+8, 9+10+11+12), m.Transform(Vec3(1, 1, 1)), 1e-12)
	assert.Equal(t, m.Scale(2), m.Add(m))
	assert.Equal(t, Matrix4{}, m.Sub(m))
	assert.Equal(t, 100.0, m.With(2, 1, 100).At(2, 1))
}

func TestMatrixStringRoundTrip(t *testing.T) {
	m := NewMatrix4(
		1.5, -0.25, 0, 0.125,
		0, 1, 1e-7, -3,
		0, 0, 0.75, 2,
		0, 0, 0, 1,
	)
	back, err := ParseMatrix4(m.String())
	require.NoError(t, err)
	assert.Equal(t, m, back)

	_, err = ParseMatrix4("1 2 3")
	assert.Error(t, err)
	_, err = ParseMatrix4("1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 x")
	assert.Error(t, err)
}
