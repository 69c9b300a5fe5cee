// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geom holds the small vector, quaternion and matrix types the
// tracker does its math with. All types are plain values; methods never
// modify the receiver.
//
// Frame convention is right-handed, Y up, X right, Z back. Positive
// rotations are counter-clockwise when looking from the positive end of
// the axis towards the origin.
package geom

import (
	"fmt"
	"math"
)

// Tolerance is the default epsilon used by comparisons and by the
// correction math to keep divisions finite.
const Tolerance = 0.00001

// Vector3 is a Euclidean 3-vector.
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Vec3 is shorthand for Vector3{x, y, z}.
func Vec3(x, y, z float64) Vector3 { return Vector3{X: x, Y: y, Z: z} }

func (v Vector3) Add(b Vector3) Vector3 { return Vector3{v.X + b.X, v.Y + b.Y, v.Z + b.Z} }
func (v Vector3) Sub(b Vector3) Vector3 { return Vector3{v.X - b.X, v.Y - b.Y, v.Z - b.Z} }
func (v Vector3) Neg() Vector3          { return Vector3{-v.X, -v.Y, -v.Z} }

// Scale multiplies every component by s.
func (v Vector3) Scale(s float64) Vector3 { return Vector3{v.X * s, v.Y * s, v.Z * s} }

// Div divides every component by s.
func (v Vector3) Div(s float64) Vector3 { return Vector3{v.X / s, v.Y / s, v.Z / s} }

// Compare reports whether b matches v within tol on every axis.
func (v Vector3) Compare(b Vector3, tol float64) bool {
	return math.Abs(b.X-v.X) < tol &&
		math.Abs(b.Y-v.Y) < tol &&
		math.Abs(b.Z-v.Z) < tol
}

// EntrywiseMultiply returns the component-wise product.
func (v Vector3) EntrywiseMultiply(b Vector3) Vector3 {
	return Vector3{v.X * b.X, v.Y * b.Y, v.Z * b.Z}
}

// Dot returns |v||b|cos(angle between them).
func (v Vector3) Dot(b Vector3) float64 { return v.X*b.X + v.Y*b.Y + v.Z*b.Z }

// Cross follows the right-hand rule: index finger along v, middle finger
// along b, thumb along the result.
func (v Vector3) Cross(b Vector3) Vector3 {
	return Vector3{
		v.Y*b.Z - v.Z*b.Y,
		v.Z*b.X - v.X*b.Z,
		v.X*b.Y - v.Y*b.X,
	}
}

// Angle returns the angle from v to b in radians. Both vectors must be
// non-zero.
func (v Vector3) Angle(b Vector3) float64 {
	div := v.LengthSq() * b.LengthSq()
	if div == 0 {
		panic("geom: Angle with a zero-length vector")
	}
	c := v.Dot(b) / math.Sqrt(div)
	// rounding can push |c| slightly past 1
	if c > 1 {
		c = 1
	} else if c < -1 {
		c = -1
	}
	return math.Acos(c)
}

func (v Vector3) LengthSq() float64 { return v.X*v.X + v.Y*v.Y + v.Z*v.Z }
func (v Vector3) Length() float64   { return math.Sqrt(v.LengthSq()) }

// Distance treats v and b as points.
func (v Vector3) Distance(b Vector3) float64 { return v.Sub(b).Length() }

func (v Vector3) IsNormalized() bool { return math.Abs(v.LengthSq()-1) < Tolerance }

// Normalized returns the unit vector along v. It panics on a zero vector.
func (v Vector3) Normalized() Vector3 {
	l := v.Length()
	if l == 0 {
		panic("geom: Normalized on a zero-length Vector3")
	}
	return v.Div(l)
}

// Lerp interpolates from v (f=0) to b (f=1).
func (v Vector3) Lerp(b Vector3, f float64) Vector3 {
	return v.Scale(1 - f).Add(b.Scale(f))
}

// ProjectTo returns the projection of v onto b.
func (v Vector3) ProjectTo(b Vector3) Vector3 {
	l2 := b.LengthSq()
	if l2 == 0 {
		panic("geom: ProjectTo a zero-length Vector3")
	}
	return b.Scale(v.Dot(b) / l2)
}

// ProjectToPlane removes the component of v along normal.
func (v Vector3) ProjectToPlane(normal Vector3) Vector3 {
	return v.Sub(v.ProjectTo(normal))
}

func (v Vector3) String() string {
	return fmt.Sprintf("(%.5f, %.5f, %.5f)", v.X, v.Y, v.Z)
}
