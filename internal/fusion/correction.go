// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"math"

	"github.com/relabs-tech/head_tracker/internal/filter"
	"github.com/relabs-tech/head_tracker/internal/geom"
	"github.com/relabs-tech/head_tracker/internal/report"
)

// Tilt correction.
const (
	startupStages    = 5
	tiltIntegralGain = 0.0125
	spikeThreshold   = 0.01 // rad above the running mean tilt
	gravityThreshold = 0.1  // relative deviation of |a| from 1 g
)

// Yaw correction.
const (
	yawWarmup           = 2.0 // s of running time before references are used
	maxMagRefDist       = 0.1
	maxTiltError        = 0.05
	yawProportionalGain = 0.01
	yawIntegralGain     = 0.0005
	freshRefScore       = 1000
)

// ComputeCorrection returns the rotation vector, as axis times angle,
// that turns estimated onto measured. The approximation stays finite up
// to an error of π. Both inputs must be non-zero.
func ComputeCorrection(measured, estimated geom.Vector3) geom.Vector3 {
	measured = measured.Normalized()
	estimated = estimated.Normalized()
	correction := measured.Cross(estimated)
	cosError := measured.Dot(estimated)
	return correction.Scale(math.Sqrt(2 / (1 + cosError + geom.Tolerance)))
}

// tiltCorrection compares the measured acceleration with the predicted
// up direction. During the first stages the full error is removed in one
// step; afterwards the gains drop to zero on tilt spikes and the integral
// term is held off while the device is accelerating.
func (e *Engine) tiltCorrection(up, accel geom.Vector3) (corr geom.Vector3, p, i float64) {
	if accel.LengthSq() == 0 || e.deltaT <= 0 {
		return geom.Vector3{}, 0, 0
	}

	corr = ComputeCorrection(accel, up)
	if e.stage <= startupStages {
		return corr, 1 / e.deltaT, 0
	}

	p, i = 5*e.gain, tiltIntegralGain
	tilt := up.Angle(accel)
	e.tiltAngles.AddElement(filter.Scalar(tilt))
	if tilt > float64(e.tiltAngles.Mean())+spikeThreshold {
		p, i = 0, 0
	}
	if math.Abs(accel.Length()/report.Gravity-1) > gravityThreshold {
		i = 0
	}
	return corr, p, i
}

// yawCorrection keeps the magnetometer reference table and returns the
// heading correction against the active reference. Only the component
// of the error perpendicular to up is corrected; a reference whose
// vertical component disagrees loses score and is evicted once the score
// goes negative and the reading has moved away from it.
func (e *Engine) yawCorrection(up geom.Vector3, qInv geom.Quaternion, calMag geom.Vector3) (corr geom.Vector3, p, i float64) {
	if calMag.LengthSq() == 0 || e.deltaT <= 0 {
		return geom.Vector3{}, 0, 0
	}

	if e.refIdx < 0 || calMag.Distance(e.refs[e.refIdx].body) > maxMagRefDist {
		e.selectReference(calMag)
	}
	if e.refIdx < 0 {
		return geom.Vector3{}, 0, 0
	}

	estimated := qInv.Rotate(e.refs[e.refIdx].world)
	measured := calMag.Normalized()
	planeMeasured := measured.ProjectToPlane(up)
	planeEstimated := estimated.ProjectToPlane(up)
	if planeMeasured.LengthSq() < geom.Tolerance || planeEstimated.LengthSq() < geom.Tolerance {
		// field is vertical, heading is unobservable
		return geom.Vector3{}, 0, 0
	}
	corr = ComputeCorrection(planeMeasured, planeEstimated)

	p, i = yawProportionalGain, yawIntegralGain
	if math.Abs(up.Dot(estimated.Sub(measured))) < maxTiltError {
		e.refScore += 2
	} else {
		e.refScore--
		p, i = 0, 0
	}
	return corr, p, i
}

func (e *Engine) selectReference(calMag geom.Vector3) {
	if e.refIdx >= 0 && e.refScore < 0 {
		e.dropReference(e.refIdx)
	}

	e.refIdx = -1
	e.refScore = freshRefScore
	best := maxMagRefDist
	for idx, ref := range e.refs {
		if d := calMag.Distance(ref.body); d < best {
			best = d
			e.refIdx = idx
		}
	}

	if e.refIdx < 0 && len(e.refs) < MaxMagReferences {
		e.refs = append(e.refs, magReference{
			body:  calMag,
			world: e.q.Rotate(calMag).Normalized(),
		})
		e.refIdx = len(e.refs) - 1
	}
}

// dropReference removes idx by moving the last entry into its slot.
func (e *Engine) dropReference(idx int) {
	last := len(e.refs) - 1
	e.refs[idx] = e.refs[last]
	e.refs = e.refs[:last]
}
