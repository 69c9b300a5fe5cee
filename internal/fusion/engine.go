// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package fusion estimates the tracker's orientation from gyro,
// accelerometer and magnetometer samples with a complementary filter:
// the gyro rate is integrated into a quaternion while gravity corrects
// tilt drift and stored magnetometer references correct yaw drift.
//
// An Engine is safe for concurrent use. OnSample calls are serialized
// and subscribers are notified in sample order.
package fusion

import (
	"sync"
	"time"

	"github.com/relabs-tech/head_tracker/internal/filter"
	"github.com/relabs-tech/head_tracker/internal/geom"
	"github.com/relabs-tech/head_tracker/internal/report"
)

// MaxMagReferences bounds the yaw reference table.
const MaxMagReferences = 1000

const (
	defaultDeltaT       = 0.001
	defaultGain         = 0.05
	defaultPredictionDT = 0.03

	rawMagHistory     = 10
	angVelHistory     = 20
	tiltAngleHistory  = 1000
	renormalizeStages = 500
)

var worldUp = geom.Vec3(0, 1, 0)

// SensorInfo describes the device the engine is attached to.
type SensorInfo struct {
	Product      string `json:"product"`
	Manufacturer string `json:"manufacturer,omitempty"`
	VendorID     uint16 `json:"vendor_id"`
	ProductID    uint16 `json:"product_id"`
	SerialNumber string `json:"serial_number"`
}

type magReference struct {
	body  geom.Vector3 // calibrated reading when recorded
	world geom.Vector3 // unit field direction in the world frame
}

// Frame is a snapshot of the engine taken right after a sample was
// applied.
type Frame struct {
	Orientation       geom.Quaternion `json:"orientation"`
	Predicted         geom.Quaternion `json:"predicted"`
	Acceleration      geom.Vector3    `json:"acceleration"`
	AngularVelocity   geom.Vector3    `json:"angular_velocity"`
	Magnetometer      geom.Vector3    `json:"magnetometer"`
	CalibratedMag     geom.Vector3    `json:"calibrated_mag"`
	GyroOffset        geom.Vector3    `json:"gyro_offset"`
	Temperature       float64         `json:"temperature"`
	Stage             uint64          `json:"stage"`
	RunningTime       float64         `json:"running_time"`
	MagReferences     int             `json:"mag_references"`
	MagCalibrated     bool            `json:"mag_calibrated"`
	YawCorrectionLive bool            `json:"yaw_correction_live"`
}

// Handler receives a Frame for every sample the engine applies.
type Handler func(Frame)

type subscription struct {
	id int
	fn Handler
}

// Engine is the orientation estimator.
type Engine struct {
	// sampleMu serializes OnSample including subscriber delivery, mu
	// guards the state below.
	sampleMu sync.Mutex
	mu       sync.Mutex

	info SensorInfo

	q            geom.Quaternion
	qUncorrected geom.Quaternion
	accel        geom.Vector3
	angV         geom.Vector3
	rawMag       geom.Vector3
	calMag       geom.Vector3
	temperature  float64

	stage       uint64
	runningTime float64
	deltaT      float64
	gain        float64

	enableGravity    bool
	enableYaw        bool
	enablePrediction bool
	motionTracking   bool
	predictionDT     float64
	predictor        Predictor

	fRawMag    *filter.VectorFilter
	fAngV      *filter.VectorFilter
	tiltAngles *filter.Filter[filter.Scalar]
	gyroOffset geom.Vector3

	magCalibrated      bool
	magCalibration     geom.Matrix4
	magCalibrationTime time.Time

	refs     []magReference
	refIdx   int
	refScore int

	subs   []subscription
	nextID int

	now func() time.Time
}

// New returns an engine at the identity orientation with gravity
// correction on, yaw correction off and prediction enabled but without
// a Predictor.
func New() *Engine {
	return &Engine{
		q:                geom.IdentityQuat(),
		qUncorrected:     geom.IdentityQuat(),
		deltaT:           defaultDeltaT,
		gain:             defaultGain,
		enableGravity:    true,
		enablePrediction: true,
		motionTracking:   true,
		predictionDT:     defaultPredictionDT,
		fRawMag:          filter.NewVectorFilter(rawMagHistory),
		fAngV:            filter.NewVectorFilter(angVelHistory),
		tiltAngles:       filter.New[filter.Scalar](tiltAngleHistory),
		magCalibration:   geom.Identity4(),
		refIdx:           -1,
		now:              time.Now,
	}
}

// AttachToSensor records the device identity and resets the orientation.
func (e *Engine) AttachToSensor(info SensorInfo) {
	e.mu.Lock()
	e.info = info
	e.resetLocked()
	e.mu.Unlock()
}

// SensorInfo returns the device set by AttachToSensor.
func (e *Engine) SensorInfo() SensorInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info
}

// Reset returns to the identity orientation and forgets the gyro bias
// estimate and the yaw references. Gains, toggles and the magnetometer
// calibration are kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.resetLocked()
	e.mu.Unlock()
}

func (e *Engine) resetLocked() {
	e.q = geom.IdentityQuat()
	e.qUncorrected = geom.IdentityQuat()
	e.stage = 0
	e.runningTime = 0
	e.refs = e.refs[:0]
	e.refIdx = -1
	e.gyroOffset = geom.Vector3{}
}

// OnSample applies one sample. It is a no-op while motion tracking is
// disabled.
func (e *Engine) OnSample(s report.Sample) {
	e.sampleMu.Lock()
	defer e.sampleMu.Unlock()

	e.mu.Lock()
	if !e.motionTracking {
		e.mu.Unlock()
		return
	}
	e.apply(s)
	subs := e.subs
	var f Frame
	if len(subs) > 0 {
		f = e.frameLocked()
	}
	e.mu.Unlock()

	for _, sub := range subs {
		sub.fn(f)
	}
}

func (e *Engine) apply(s report.Sample) {
	gyro := s.RotationRate
	accel := s.Acceleration
	mag := s.MagneticField

	e.fRawMag.AddElement(mag)
	e.fAngV.AddElement(gyro)
	calMag := e.fRawMag.Mean()
	if e.magCalibrated {
		calMag = e.magCalibration.Transform(calMag)
	}

	e.deltaT = s.TimeDelta
	e.angV = gyro
	e.accel = accel
	e.rawMag = mag
	e.calMag = calMag
	e.temperature = s.Temperature

	e.stage++
	e.runningTime += e.deltaT

	qInv := e.q.Inverted()
	up := qInv.Rotate(worldUp)

	gyroCorrected := gyro
	if e.enableGravity || e.enableYaw {
		gyroCorrected = gyroCorrected.Sub(e.gyroOffset)
	}
	if e.enableGravity {
		corr, p, i := e.tiltCorrection(up, accel)
		gyroCorrected = e.feedback(gyroCorrected, corr, p, i)
	}
	if e.yawCorrectionLive() {
		corr, p, i := e.yawCorrection(up, qInv, calMag)
		gyroCorrected = e.feedback(gyroCorrected, corr, p, i)
	}

	e.q = integrate(e.q, gyroCorrected, e.deltaT)
	e.qUncorrected = integrate(e.qUncorrected, gyro, e.deltaT)
	if e.stage%renormalizeStages == 0 {
		e.q = e.q.Normalized()
		e.qUncorrected = e.qUncorrected.Normalized()
	}
}

// feedback adds the proportional term to the rate and moves the bias
// estimate by the integral term.
func (e *Engine) feedback(rate, corr geom.Vector3, p, i float64) geom.Vector3 {
	e.gyroOffset = e.gyroOffset.Sub(corr.Scale(i * e.deltaT))
	return rate.Add(corr.Scale(p))
}

func integrate(q geom.Quaternion, rate geom.Vector3, dt float64) geom.Quaternion {
	angle := rate.Length() * dt
	if angle > 0 {
		q = q.Mul(geom.QuatFromAxisAngle(rate, angle))
	}
	return q
}

func (e *Engine) yawCorrectionLive() bool {
	return e.enableYaw && e.magCalibrated && e.runningTime > yawWarmup
}

func (e *Engine) frameLocked() Frame {
	return Frame{
		Orientation:       e.q,
		Predicted:         e.predictLocked(e.predictionDT),
		Acceleration:      e.accel,
		AngularVelocity:   e.angV,
		Magnetometer:      e.rawMag,
		CalibratedMag:     e.calMag,
		GyroOffset:        e.gyroOffset,
		Temperature:       e.temperature,
		Stage:             e.stage,
		RunningTime:       e.runningTime,
		MagReferences:     len(e.refs),
		MagCalibrated:     e.magCalibrated,
		YawCorrectionLive: e.yawCorrectionLive(),
	}
}

// Snapshot returns the same view subscribers receive.
func (e *Engine) Snapshot() Frame {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameLocked()
}

// Subscribe registers fn to be called synchronously after every applied
// sample, in sample order. fn must not call OnSample. The returned func
// removes the subscription.
func (e *Engine) Subscribe(fn Handler) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	// copy on write: OnSample iterates its own view without the lock
	subs := make([]subscription, len(e.subs), len(e.subs)+1)
	copy(subs, e.subs)
	e.subs = append(subs, subscription{id: id, fn: fn})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		kept := make([]subscription, 0, len(e.subs))
		for _, s := range e.subs {
			if s.id != id {
				kept = append(kept, s)
			}
		}
		e.subs = kept
	}
}

// GetOrientation returns the current corrected orientation.
func (e *Engine) GetOrientation() geom.Quaternion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.q
}

// GetUncorrectedOrientation returns the integral of the raw gyro rate
// with no bias or drift correction.
func (e *Engine) GetUncorrectedOrientation() geom.Quaternion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.qUncorrected
}

// GetAcceleration returns the last accelerometer reading in m/s².
func (e *Engine) GetAcceleration() geom.Vector3 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accel
}

// GetAngularVelocity returns the last gyro reading in rad/s.
func (e *Engine) GetAngularVelocity() geom.Vector3 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.angV
}

// GetMagnetometer returns the last raw magnetometer reading in gauss.
func (e *Engine) GetMagnetometer() geom.Vector3 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rawMag
}

// GetCalibratedMagnetometer returns the smoothed, calibrated reading.
// ok is false when no calibration is set.
func (e *Engine) GetCalibratedMagnetometer() (v geom.Vector3, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calMag, e.magCalibrated
}

// GetCalibratedMagValue applies the calibration to raw. ok is false, and
// raw is returned unchanged, when no calibration is set.
func (e *Engine) GetCalibratedMagValue(raw geom.Vector3) (v geom.Vector3, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.magCalibrated {
		return raw, false
	}
	return e.magCalibration.Transform(raw), true
}

// GyroOffset is the gyro bias estimated by the integral terms.
func (e *Engine) GyroOffset() geom.Vector3 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gyroOffset
}

// Stage is the number of samples applied since the last reset.
func (e *Engine) Stage() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stage
}

// RunningTime is the sum of sample time deltas since the last reset.
func (e *Engine) RunningTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runningTime
}

// EnableMotionTracking turns sample processing on or off.
func (e *Engine) EnableMotionTracking(enable bool) {
	e.mu.Lock()
	e.motionTracking = enable
	e.mu.Unlock()
}

// IsMotionTrackingEnabled reports whether OnSample applies samples.
func (e *Engine) IsMotionTrackingEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.motionTracking
}

// SetGravityEnabled toggles accelerometer tilt correction.
func (e *Engine) SetGravityEnabled(enable bool) {
	e.mu.Lock()
	e.enableGravity = enable
	e.mu.Unlock()
}

// IsGravityEnabled reports whether tilt correction is on.
func (e *Engine) IsGravityEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enableGravity
}

// SetAccelGain scales the steady-state tilt correction.
func (e *Engine) SetAccelGain(g float64) {
	e.mu.Lock()
	e.gain = g
	e.mu.Unlock()
}

// GetAccelGain returns the tilt correction gain.
func (e *Engine) GetAccelGain() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gain
}

// SetYawCorrectionEnabled toggles magnetometer yaw correction. It only
// takes effect once a calibration is set.
func (e *Engine) SetYawCorrectionEnabled(enable bool) {
	e.mu.Lock()
	e.enableYaw = enable
	e.mu.Unlock()
}

// IsYawCorrectionEnabled reports the yaw correction toggle.
func (e *Engine) IsYawCorrectionEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enableYaw
}

// SetMagCalibration installs an affine magnetometer correction and
// stamps it with the current time.
func (e *Engine) SetMagCalibration(m geom.Matrix4) {
	e.mu.Lock()
	e.setMagCalibrationLocked(m, e.now())
	e.mu.Unlock()
}

func (e *Engine) setMagCalibrationLocked(m geom.Matrix4, at time.Time) {
	e.magCalibration = m
	e.magCalibrationTime = at
	e.magCalibrated = true
}

// GetMagCalibration returns the last installed calibration matrix.
func (e *Engine) GetMagCalibration() geom.Matrix4 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.magCalibration
}

// GetMagCalibrationTime is when the calibration was set or recorded.
func (e *Engine) GetMagCalibrationTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.magCalibrationTime
}

// HasMagCalibration reports whether a calibration is active.
func (e *Engine) HasMagCalibration() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.magCalibrated
}

// ClearMagCalibration marks the engine uncalibrated. The matrix is kept
// so GetMagCalibration still reports it.
func (e *Engine) ClearMagCalibration() {
	e.mu.Lock()
	e.magCalibrated = false
	e.mu.Unlock()
}

// ClearMagReferences empties the yaw reference table.
func (e *Engine) ClearMagReferences() {
	e.mu.Lock()
	e.refs = e.refs[:0]
	e.refIdx = -1
	e.mu.Unlock()
}

// MagReferenceCount is the size of the yaw reference table.
func (e *Engine) MagReferenceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.refs)
}
