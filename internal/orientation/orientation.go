// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/relabs-tech/head_tracker/internal/geom"
)

// Pose is the canonical representation of orientation for the app,
// in degrees.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Source is anything that can provide poses over time: the fusion
// engine, the mock motion, a replayed recording.
type Source interface {
	Next() (Pose, error)
}

// FromQuaternion decomposes q as yaw around Y, then pitch around X,
// then roll around Z.
func FromQuaternion(q geom.Quaternion) Pose {
	yaw, pitch, roll := q.YawPitchRoll()
	return Pose{
		Roll:  Degrees(roll),
		Pitch: Degrees(pitch),
		Yaw:   Degrees(yaw),
	}
}

// TiltFromGravity computes roll and pitch from an accelerometer reading
// alone, in the Y-up tracker frame. Yaw is unobservable and left at 0.
func TiltFromGravity(accel geom.Vector3) Pose {
	pitch := math.Atan2(-accel.Z, math.Hypot(accel.X, accel.Y))
	roll := math.Atan2(accel.X, accel.Y)
	return Pose{
		Roll:  Degrees(roll),
		Pitch: Degrees(pitch),
	}
}

func Degrees(rad float64) float64 { return rad * 180.0 / math.Pi }
