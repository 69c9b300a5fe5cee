// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/geom"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

func TestHub(t *testing.T) {
	h := newHub[int]()
	_, ok := h.Last()
	assert.False(t, ok)

	ch, stop := h.Subscribe()
	h.Publish(1)
	h.Publish(2)
	assert.Equal(t, 1, <-ch)
	assert.Equal(t, 2, <-ch)

	v, ok := h.Last()
	assert.True(t, ok)
	assert.Equal(t, 2, v)

	stop()
	stop()
	_, open := <-ch
	assert.False(t, open)
	h.Publish(3) // no subscriber left, must not block or panic
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := newHub[int]()
	ch, stop := h.Subscribe()
	defer stop()
	for i := 0; i < hubBuffer*2; i++ {
		h.Publish(i)
	}
	assert.Len(t, ch, hubBuffer)
	v, _ := h.Last()
	assert.Equal(t, hubBuffer*2-1, v)
}

func newTestServer(t *testing.T, publish commandPublisher) (*webState, *httptest.Server) {
	t.Helper()
	state := newWebState(publish)
	srv := httptest.NewServer(state.mux(t.TempDir()))
	t.Cleanup(srv.Close)
	return state, srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestLatestOrientationAPI(t *testing.T) {
	state, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL + "/api/orientation")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	state.poses.Publish(orientation.Pose{Roll: 1, Pitch: 2, Yaw: 3})

	resp, err = http.Get(srv.URL + "/api/orientation")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p orientation.Pose
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	assert.Equal(t, orientation.Pose{Roll: 1, Pitch: 2, Yaw: 3}, p)
}

// feed publishes values produced by next until the test ends.
func feed[T any](t *testing.T, h *hub[T], next func(i int) T) {
	t.Helper()
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			case <-time.After(time.Millisecond):
				h.Publish(next(i))
			}
		}
	}()
}

func TestOrientationStream(t *testing.T) {
	state, srv := newTestServer(t, nil)
	conn := dial(t, srv, "/ws/orientation")

	feed(t, state.poses, func(i int) orientation.Pose {
		return orientation.Pose{Yaw: 45}
	})

	var p orientation.Pose
	require.NoError(t, conn.ReadJSON(&p))
	assert.Equal(t, 45.0, p.Yaw)
}

// ellipsoidPoint spreads readings over a shifted, stretched sphere.
func ellipsoidPoint(i int) geom.Vector3 {
	const n = 200
	k := float64(i%n) + 0.5
	z := 1 - 2*k/n
	r := math.Sqrt(1 - z*z)
	phi := k * math.Pi * (3 - math.Sqrt(5))
	return geom.Vec3(0.1+0.5*r*math.Cos(phi), -0.2+0.4*r*math.Sin(phi), 0.05+0.45*z)
}

// readUntil returns the first response of the given type.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) WSResponse {
	t.Helper()
	for {
		var r WSResponse
		require.NoError(t, conn.ReadJSON(&r))
		if r.Type == "error" && typ != "error" {
			t.Fatalf("unexpected error: %s", r.Message)
		}
		if r.Type == typ {
			return r
		}
	}
}

func TestCalibrationSession(t *testing.T) {
	published := make(chan CalibrationCommand, 4)
	state, srv := newTestServer(t, func(c CalibrationCommand) error {
		published <- c
		return nil
	})
	conn := dial(t, srv, "/ws/calibration")

	t.Run("apply before capture", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(WSMessage{Action: "apply"}))
		r := readUntil(t, conn, "error")
		assert.Equal(t, errNoFit.Error(), r.Message)
	})

	t.Run("capture and apply", func(t *testing.T) {
		feed(t, state.frames, func(i int) fusion.Frame {
			return fusion.Frame{Magnetometer: ellipsoidPoint(i)}
		})

		require.NoError(t, conn.WriteJSON(WSMessage{Action: "start", Name: "desk", Samples: 400}))
		stats := readUntil(t, conn, "stats")
		assert.EqualValues(t, 400, stats.Stats["samples"])
		assert.Greater(t, stats.Stats["confidence"], 50.0)
		readUntil(t, conn, "action")

		require.NoError(t, conn.WriteJSON(WSMessage{Action: "apply"}))
		done := readUntil(t, conn, "complete")
		assert.Equal(t, "calibration applied", done.Message)

		cmd := <-published
		assert.Equal(t, CalibrationSet, cmd.Action)
		assert.Equal(t, "desk", cmd.Name)
		require.NotNil(t, cmd.YawCorrection)
		assert.True(t, *cmd.YawCorrection)

		m, err := geom.ParseMatrix4(cmd.Matrix)
		require.NoError(t, err)
		// every corrected reading lies on one sphere
		r0 := m.Transform(ellipsoidPoint(0)).Length()
		for i := 1; i < 200; i++ {
			assert.InDelta(t, r0, m.Transform(ellipsoidPoint(i)).Length(), 1e-6*r0)
		}
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(WSMessage{Action: "clear"}))
		readUntil(t, conn, "complete")
		assert.Equal(t, CalibrationClear, (<-published).Action)
	})
}

func TestCalibrationSessionIdleTimeout(t *testing.T) {
	saved := calibrationIdleTimeout
	calibrationIdleTimeout = 50 * time.Millisecond
	defer func() { calibrationIdleTimeout = saved }()

	_, srv := newTestServer(t, func(CalibrationCommand) error { return nil })
	conn := dial(t, srv, "/ws/calibration")

	require.NoError(t, conn.WriteJSON(WSMessage{Action: "start"}))
	r := readUntil(t, conn, "error")
	assert.Contains(t, r.Message, "no tracker samples")
}
