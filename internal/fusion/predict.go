// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package fusion

import (
	"github.com/relabs-tech/head_tracker/internal/geom"
)

// Predictor extrapolates an orientation dt seconds ahead.
type Predictor interface {
	Predict(q geom.Quaternion, angularVelocity geom.Vector3, dt float64) geom.Quaternion
}

// PredictorFunc adapts a plain function to Predictor.
type PredictorFunc func(q geom.Quaternion, angularVelocity geom.Vector3, dt float64) geom.Quaternion

func (f PredictorFunc) Predict(q geom.Quaternion, w geom.Vector3, dt float64) geom.Quaternion {
	return f(q, w, dt)
}

// ConstantRatePredictor assumes the last measured rate holds for the
// lookahead. The lookahead shrinks at low rates so a resting head does
// not shake.
type ConstantRatePredictor struct{}

const (
	minPredictionDT   = 0.001
	predictionDTSlope = 0.1
	minPredictionRate = 0.001
)

func (ConstantRatePredictor) Predict(q geom.Quaternion, w geom.Vector3, dt float64) geom.Quaternion {
	rate := w.Length()
	if rate <= minPredictionRate {
		return q
	}
	if scaled := minPredictionDT + predictionDTSlope*rate; scaled < dt {
		dt = scaled
	}
	return q.Mul(geom.QuatFromAxisAngle(w, rate*dt))
}

// SetPredictor installs the extrapolation used by GetPredictedOrientation.
// nil disables extrapolation.
func (e *Engine) SetPredictor(p Predictor) {
	e.mu.Lock()
	e.predictor = p
	e.mu.Unlock()
}

// SetPrediction sets the default lookahead in seconds and toggles
// prediction.
func (e *Engine) SetPrediction(dt float64, enable bool) {
	e.mu.Lock()
	e.predictionDT = dt
	e.enablePrediction = enable
	e.mu.Unlock()
}

// SetPredictionEnabled toggles prediction without changing the lookahead.
func (e *Engine) SetPredictionEnabled(enable bool) {
	e.mu.Lock()
	e.enablePrediction = enable
	e.mu.Unlock()
}

// IsPredictionEnabled reports the prediction toggle.
func (e *Engine) IsPredictionEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enablePrediction
}

// GetPredictionDelta returns the default lookahead in seconds.
func (e *Engine) GetPredictionDelta() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.predictionDT
}

// GetPredictedOrientation returns the orientation dt seconds ahead. It is
// the current orientation when prediction is disabled or no Predictor
// is installed.
func (e *Engine) GetPredictedOrientation(dt float64) geom.Quaternion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.predictLocked(dt)
}

// PredictedOrientation predicts with the default lookahead.
func (e *Engine) PredictedOrientation() geom.Quaternion {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.predictLocked(e.predictionDT)
}

func (e *Engine) predictLocked(dt float64) geom.Quaternion {
	if !e.enablePrediction || e.predictor == nil {
		return e.q
	}
	return e.predictor.Predict(e.q, e.angV, dt)
}
