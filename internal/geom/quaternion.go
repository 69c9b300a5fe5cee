// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package geom

import (
	"fmt"
	"math"
)

// singularityRadius bounds the gimbal-lock zone in EulerAngles.
const singularityRadius = 0.0000001

// Axis indexes the coordinate axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// RotateDirection is CCW when looking from the positive axis towards the
// origin, which is the default for the right-handed frame.
type RotateDirection int

const (
	CCW RotateDirection = 1
	CW  RotateDirection = -1
)

// HandedSystem selects right or left handed coordinates.
type HandedSystem int

const (
	RightHanded HandedSystem = 1
	LeftHanded  HandedSystem = -1
)

// Quaternion is w + xi + yj + zk. Products compose right to left, the
// same way matrices do: a.Mul(b) applies b first.
type Quaternion struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
	W float64 `json:"w" yaml:"w"`
}

// IdentityQuat is the zero rotation.
func IdentityQuat() Quaternion { return Quaternion{W: 1} }

// QuatFromAxisAngle builds the rotation of angle radians around axis.
// axis does not need to be unit length but must be non-zero.
func QuatFromAxisAngle(axis Vector3, angle float64) Quaternion {
	u := axis.Normalized()
	s, c := math.Sincos(angle * 0.5)
	return Quaternion{X: u.X * s, Y: u.Y * s, Z: u.Z * s, W: c}
}

// AxisAngle builds a rotation about one coordinate axis.
func AxisAngle(a Axis, angle float64, d RotateDirection, hs HandedSystem) Quaternion {
	s, c := math.Sincos(angle * 0.5)
	s *= float64(hs) * float64(d)
	var v [3]float64
	v[a] = s
	return Quaternion{X: v[0], Y: v[1], Z: v[2], W: c}
}

// GetAxisAngle returns the rotation axis and angle of q. A rotation too
// small to have a meaningful axis reports (1,0,0) and 0.
func (q Quaternion) GetAxisAngle() (Vector3, float64) {
	if q.X*q.X+q.Y*q.Y+q.Z*q.Z > Tolerance*Tolerance {
		w := math.Max(-1, math.Min(1, q.W))
		return Vec3(q.X, q.Y, q.Z).Normalized(), 2 * math.Acos(w)
	}
	return Vec3(1, 0, 0), 0
}

func (q Quaternion) Add(b Quaternion) Quaternion {
	return Quaternion{q.X + b.X, q.Y + b.Y, q.Z + b.Z, q.W + b.W}
}

func (q Quaternion) Sub(b Quaternion) Quaternion {
	return Quaternion{q.X - b.X, q.Y - b.Y, q.Z - b.Z, q.W - b.W}
}

func (q Quaternion) Scale(s float64) Quaternion {
	return Quaternion{q.X * s, q.Y * s, q.Z * s, q.W * s}
}

// Imag returns the vector part.
func (q Quaternion) Imag() Vector3 { return Vector3{q.X, q.Y, q.Z} }

func (q Quaternion) LengthSq() float64 { return q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W }
func (q Quaternion) Length() float64   { return math.Sqrt(q.LengthSq()) }

// Distance is the Euclidean distance in R^4, taking the closer of q and
// its antipode -q since both encode the same rotation.
func (q Quaternion) Distance(b Quaternion) float64 {
	return math.Min(q.Sub(b).Length(), q.Add(b).Length())
}

func (q Quaternion) DistanceSq(b Quaternion) float64 {
	return math.Min(q.Sub(b).LengthSq(), q.Add(b).LengthSq())
}

func (q Quaternion) IsNormalized() bool { return math.Abs(q.LengthSq()-1) < Tolerance }

// Normalized panics on a zero quaternion.
func (q Quaternion) Normalized() Quaternion {
	l := q.Length()
	if l == 0 {
		panic("geom: Normalized on a zero-length Quaternion")
	}
	return q.Scale(1 / l)
}

// Conj is the conjugate, which is the inverse rotation for unit q.
func (q Quaternion) Conj() Quaternion { return Quaternion{-q.X, -q.Y, -q.Z, q.W} }

// Inverted rotates in the opposite direction. Same as Conj for unit q.
func (q Quaternion) Inverted() Quaternion { return q.Conj() }

// Mul returns q*b, the rotation b followed by q.
func (q Quaternion) Mul(b Quaternion) Quaternion {
	return Quaternion{
		X: q.W*b.X + q.X*b.W + q.Y*b.Z - q.Z*b.Y,
		Y: q.W*b.Y - q.X*b.Z + q.Y*b.W + q.Z*b.X,
		Z: q.W*b.Z + q.X*b.Y - q.Y*b.X + q.Z*b.W,
		W: q.W*b.W - q.X*b.X - q.Y*b.Y - q.Z*b.Z,
	}
}

// PowNormalized is q applied p times, as a unit quaternion.
func (q Quaternion) PowNormalized(p float64) Quaternion {
	axis, angle := q.GetAxisAngle()
	return QuatFromAxisAngle(axis, angle*p)
}

// Rotate computes q * (v,0) * q^-1. It matches Matrix4FromQuat(q).Transform(v).
func (q Quaternion) Rotate(v Vector3) Vector3 {
	return q.Mul(Quaternion{X: v.X, Y: v.Y, Z: v.Z}).Mul(q.Inverted()).Imag()
}

// Matrix4FromQuat returns the pure rotation matrix of q.
func Matrix4FromQuat(q Quaternion) Matrix4 {
	ww, xx, yy, zz := q.W*q.W, q.X*q.X, q.Y*q.Y, q.Z*q.Z
	return NewMatrix3(
		ww+xx-yy-zz, 2*(q.X*q.Y-q.W*q.Z), 2*(q.X*q.Z+q.W*q.Y),
		2*(q.X*q.Y+q.W*q.Z), ww-xx+yy-zz, 2*(q.Y*q.Z-q.W*q.X),
		2*(q.X*q.Z-q.W*q.Y), 2*(q.Y*q.Z+q.W*q.X), ww-xx-yy+zz,
	)
}

// QuatFromMatrix4 extracts the rotation of the upper 3x3 block of m,
// branching on the trace and the largest diagonal element so the divisor
// never gets close to zero.
func QuatFromMatrix4(m Matrix4) Quaternion {
	m00, m11, m22 := m.At(0, 0), m.At(1, 1), m.At(2, 2)
	trace := m00 + m11 + m22

	var q Quaternion
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2 // 4w
		q.W = 0.25 * s
		q.X = (m.At(2, 1) - m.At(1, 2)) / s
		q.Y = (m.At(0, 2) - m.At(2, 0)) / s
		q.Z = (m.At(1, 0) - m.At(0, 1)) / s
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2 // 4x
		q.W = (m.At(2, 1) - m.At(1, 2)) / s
		q.X = 0.25 * s
		q.Y = (m.At(0, 1) + m.At(1, 0)) / s
		q.Z = (m.At(2, 0) + m.At(0, 2)) / s
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2 // 4y
		q.W = (m.At(0, 2) - m.At(2, 0)) / s
		q.X = (m.At(0, 1) + m.At(1, 0)) / s
		q.Y = 0.25 * s
		q.Z = (m.At(1, 2) + m.At(2, 1)) / s
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2 // 4z
		q.W = (m.At(1, 0) - m.At(0, 1)) / s
		q.X = (m.At(0, 2) + m.At(2, 0)) / s
		q.Y = (m.At(1, 2) + m.At(2, 1)) / s
		q.Z = 0.25 * s
	}
	return q
}

// EulerAngles decomposes q into rotation a around a1, followed by b
// around a2, followed by c around a3. The three axes must differ.
func (q Quaternion) EulerAngles(a1, a2, a3 Axis, d RotateDirection, hs HandedSystem) (a, b, c float64) {
	if a1 == a2 || a2 == a3 || a1 == a3 {
		panic("geom: EulerAngles needs three distinct axes")
	}
	Q := [3]float64{q.X, q.Y, q.Z}
	ww := q.W * q.W
	q11, q22, q33 := Q[a1]*Q[a1], Q[a2]*Q[a2], Q[a3]*Q[a3]

	psign := -1.0
	if (a1+1)%3 == a2 && (a2+1)%3 == a3 {
		psign = 1
	}
	sd := float64(hs) * float64(d)

	s2 := psign * 2 * (psign*q.W*Q[a2] + Q[a1]*Q[a3])
	switch {
	case s2 < -1+singularityRadius:
		a = 0
		b = -sd * math.Pi / 2
		c = sd * math.Atan2(2*(psign*Q[a1]*Q[a2]+q.W*Q[a3]), ww+q22-q11-q33)
	case s2 > 1-singularityRadius:
		a = 0
		b = sd * math.Pi / 2
		c = sd * math.Atan2(2*(psign*Q[a1]*Q[a2]+q.W*Q[a3]), ww+q22-q11-q33)
	default:
		a = -sd * math.Atan2(-2*(q.W*Q[a1]-psign*Q[a2]*Q[a3]), ww+q33-q11-q22)
		b = sd * math.Asin(s2)
		c = sd * math.Atan2(2*(q.W*Q[a3]-psign*Q[a1]*Q[a2]), ww+q11-q22-q33)
	}
	return a, b, c
}

// YawPitchRoll is EulerAngles in the head-tracking order: yaw around Y,
// then pitch around X, then roll around Z.
func (q Quaternion) YawPitchRoll() (yaw, pitch, roll float64) {
	return q.EulerAngles(AxisY, AxisX, AxisZ, CCW, RightHanded)
}

func (q Quaternion) String() string {
	return fmt.Sprintf("(%.5f, %.5f, %.5f, %.5f)", q.X, q.Y, q.Z, q.W)
}
