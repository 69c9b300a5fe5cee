// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"

	"github.com/relabs-tech/head_tracker/internal/fusion"
)

// ErrNoSamples is returned by an engine source before the engine has
// applied its first sample.
var ErrNoSamples = errors.New("orientation: no samples fused yet")

type engineSource struct {
	engine *fusion.Engine
}

// NewEngineSource returns a Source reading the predicted orientation of
// a fusion engine. When prediction is disabled that is the current
// orientation.
func NewEngineSource(e *fusion.Engine) Source {
	return &engineSource{engine: e}
}

func (s *engineSource) Next() (Pose, error) {
	if s.engine.Stage() == 0 {
		return Pose{}, ErrNoSamples
	}
	return FromQuaternion(s.engine.PredictedOrientation()), nil
}
