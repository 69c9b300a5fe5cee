// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"

	"github.com/relabs-tech/head_tracker/internal/geom"
)

// Motion is a smooth synthetic head movement: a yaw oscillation around
// the vertical axis with a pitch nod applied on top of it. Amplitudes
// are in radians, periods in seconds.
type Motion struct {
	YawAmplitude   float64
	YawPeriod      float64
	PitchAmplitude float64
	PitchPeriod    float64
}

// DefaultMotion looks left and right every 8s while nodding every 5s.
var DefaultMotion = Motion{
	YawAmplitude:   0.8,
	YawPeriod:      8,
	PitchAmplitude: 0.3,
	PitchPeriod:    5,
}

func (m Motion) angles(t float64) (yaw, pitch float64) {
	return m.YawAmplitude * math.Sin(2*math.Pi*t/m.YawPeriod),
		m.PitchAmplitude * math.Sin(2*math.Pi*t/m.PitchPeriod)
}

// Orientation at t seconds into the motion.
func (m Motion) Orientation(t float64) geom.Quaternion {
	yaw, pitch := m.angles(t)
	qy := geom.QuatFromAxisAngle(geom.Vec3(0, 1, 0), yaw)
	qx := geom.QuatFromAxisAngle(geom.Vec3(1, 0, 0), pitch)
	return qy.Mul(qx)
}

// AngularVelocity is the body-frame rate in rad/s at t, the quantity a
// gyro strapped to the moving head would report.
func (m Motion) AngularVelocity(t float64) geom.Vector3 {
	_, pitch := m.angles(t)
	yawRate := m.YawAmplitude * 2 * math.Pi / m.YawPeriod * math.Cos(2*math.Pi*t/m.YawPeriod)
	pitchRate := m.PitchAmplitude * 2 * math.Pi / m.PitchPeriod * math.Cos(2*math.Pi*t/m.PitchPeriod)

	qx := geom.QuatFromAxisAngle(geom.Vec3(1, 0, 0), pitch)
	return qx.Conj().Rotate(geom.Vec3(0, yawRate, 0)).Add(geom.Vec3(pitchRate, 0, 0))
}

// Body expresses a world-frame vector, such as gravity or the earth's
// field, in the body frame at t.
func (m Motion) Body(t float64, world geom.Vector3) geom.Vector3 {
	return m.Orientation(t).Conj().Rotate(world)
}

type mockSource struct {
	motion Motion
	start  time.Time
}

// NewMockSource creates a mock orientation source that
// follows DefaultMotion from the moment it is created.
func NewMockSource() Source {
	return &mockSource{motion: DefaultMotion, start: time.Now()}
}

func (m *mockSource) Next() (Pose, error) {
	elapsed := time.Since(m.start).Seconds()
	return FromQuaternion(m.motion.Orientation(elapsed)), nil
}
