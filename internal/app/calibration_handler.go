// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/head_tracker/internal/calibration"
	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/geom"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const defaultCalibrationSamples = 600

// calibrationIdleTimeout aborts a capture when the tracker stops
// publishing samples.
var calibrationIdleTimeout = 5 * time.Second

var errNoFit = errors.New("no calibration captured yet")

// commandPublisher delivers a calibration command to the tracker.
type commandPublisher func(CalibrationCommand) error

// CalibrationSession holds the state of one browser-guided
// magnetometer calibration.
type CalibrationSession struct {
	Conn    *websocket.Conn
	frames  *hub[fusion.Frame]
	publish commandPublisher

	name string
	fit  *calibration.Fit
}

// WebSocket message types
type WSMessage struct {
	Action  string `json:"action"` // start, apply, clear, cancel
	Name    string `json:"name,omitempty"`
	Samples int    `json:"samples,omitempty"`
}

type WSResponse struct {
	Type     string         `json:"type"` // phase, step, progress, stats, action, complete, error
	Phase    string         `json:"phase,omitempty"`
	Step     string         `json:"step,omitempty"`
	Progress float64        `json:"progress,omitempty"`
	Stats    map[string]any `json:"stats,omitempty"`
	Results  any            `json:"results,omitempty"`
	Message  string         `json:"message,omitempty"`
}

// calibrationHandler serves the calibration websocket. Samples come
// from frames and the result is handed to publish.
func calibrationHandler(frames *hub[fusion.Frame], publish commandPublisher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("calibration: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		session := &CalibrationSession{Conn: conn, frames: frames, publish: publish}

		for {
			var msg WSMessage
			if err := conn.ReadJSON(&msg); err != nil {
				log.Printf("calibration: websocket read error: %v", err)
				return
			}

			switch msg.Action {
			case "start":
				if err := session.capture(msg.Name, msg.Samples); err != nil {
					session.sendError(err.Error())
				}
			case "apply":
				if err := session.apply(); err != nil {
					session.sendError(err.Error())
				}
			case "clear":
				if err := session.clear(); err != nil {
					session.sendError(err.Error())
				}
			case "cancel":
				log.Printf("calibration: cancelled by user")
				return
			default:
				session.sendError(fmt.Sprintf("unknown action %q", msg.Action))
			}
		}
	}
}

// capture collects raw magnetometer readings while the user turns the
// tracker through every orientation, then fits them.
func (s *CalibrationSession) capture(name string, target int) error {
	if target <= 0 {
		target = defaultCalibrationSamples
	}
	s.name = name
	s.fit = nil

	s.sendPhase("mag")
	s.sendStep("mag-rotate", "mag")
	s.sendProgress(0)

	frames, stop := s.frames.Subscribe()
	defer stop()

	samples := make([]geom.Vector3, 0, target)
	idle := time.NewTimer(calibrationIdleTimeout)
	defer idle.Stop()

	for len(samples) < target {
		select {
		case f := <-frames:
			samples = append(samples, f.Magnetometer)
			if len(samples)%10 == 0 {
				s.sendProgress(float64(len(samples)) * 100 / float64(target))
			}
			idle.Reset(calibrationIdleTimeout)
		case <-idle.C:
			return fmt.Errorf("no tracker samples for %v after %d readings; is the tracker running?", calibrationIdleTimeout, len(samples))
		}
	}
	s.sendProgress(100)

	fit, err := calibration.FitMagnetometer(samples)
	if err != nil {
		return fmt.Errorf("fit failed: %w", err)
	}
	s.fit = &fit
	log.Printf("calibration: %s fit from %d samples, confidence %.1f%%", fit.Method, fit.Samples, fit.Confidence)

	s.sendStats()
	s.sendActionReady()
	return nil
}

func (s *CalibrationSession) apply() error {
	if s.fit == nil {
		return errNoFit
	}
	yaw := true
	cmd := CalibrationCommand{
		Action:        CalibrationSet,
		Matrix:        s.fit.Matrix.String(),
		Name:          s.name,
		YawCorrection: &yaw,
	}
	if err := s.publish(cmd); err != nil {
		return err
	}
	log.Printf("calibration: applied %q", s.name)
	return s.Conn.WriteJSON(WSResponse{
		Type:    "complete",
		Results: s.fit,
		Message: "calibration applied",
	})
}

func (s *CalibrationSession) clear() error {
	if err := s.publish(CalibrationCommand{Action: CalibrationClear}); err != nil {
		return err
	}
	s.fit = nil
	return s.Conn.WriteJSON(WSResponse{
		Type:    "complete",
		Message: "calibration cleared",
	})
}

func (s *CalibrationSession) sendPhase(phase string) {
	s.Conn.WriteJSON(WSResponse{
		Type:  "phase",
		Phase: phase,
	})
}

func (s *CalibrationSession) sendStep(step, phase string) {
	s.Conn.WriteJSON(WSResponse{
		Type:  "step",
		Step:  step,
		Phase: phase,
	})
}

func (s *CalibrationSession) sendProgress(progress float64) {
	s.Conn.WriteJSON(WSResponse{
		Type:     "progress",
		Progress: progress,
	})
}

func (s *CalibrationSession) sendStats() {
	stats := map[string]any{
		"method":         s.fit.Method,
		"confidence":     s.fit.Confidence,
		"residual":       s.fit.Residual,
		"field_strength": s.fit.FieldStrength,
		"samples":        s.fit.Samples,
	}
	s.Conn.WriteJSON(WSResponse{
		Type:  "stats",
		Stats: stats,
	})
}

func (s *CalibrationSession) sendActionReady() {
	s.Conn.WriteJSON(WSResponse{
		Type:    "action",
		Message: "ready",
	})
}

func (s *CalibrationSession) sendError(message string) {
	s.Conn.WriteJSON(WSResponse{
		Type:    "error",
		Message: message,
	})
}
