// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/heading"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

// webState is what the web server knows about the tracker, fed from
// MQTT.
type webState struct {
	poses   *hub[orientation.Pose]
	frames  *hub[fusion.Frame]
	drift   *hub[heading.Drift]
	publish commandPublisher
}

func newWebState(publish commandPublisher) *webState {
	return &webState{
		poses:   newHub[orientation.Pose](),
		frames:  newHub[fusion.Frame](),
		drift:   newHub[heading.Drift](),
		publish: publish,
	}
}

func RunWeb() error {
	cfg := config.Get()

	// 1) Connect to MQTT broker
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	state := newWebState(func(cmd CalibrationCommand) error {
		return publishJSON(client, cfg.TopicCalibrationSet, false, cmd)
	})

	// 2) Subscribe to the tracker's topics
	if err := subscribeJSON(client, cfg.TopicPose, state.poses.Publish); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicSample, state.frames.Publish); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicHeadingDrift, state.drift.Publish); err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, state.mux("web"))
}

func (s *webState) mux(staticDir string) *http.ServeMux {
	mux := http.NewServeMux()

	// JSON API endpoints: latest values
	mux.HandleFunc("/api/orientation", latestHandler(s.poses))
	mux.HandleFunc("/api/sample", latestHandler(s.frames))
	mux.HandleFunc("/api/heading", latestHandler(s.drift))

	mux.HandleFunc("/ws/orientation", streamHandler(s.poses))
	mux.HandleFunc("/ws/calibration", calibrationHandler(s.frames, s.publish))

	// Static files as the root
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

func latestHandler[T any](h *hub[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, ok := h.Last()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("json encode error: %v", err)
		}
	}
}

// streamHandler pushes every value of h to a websocket client until it
// disconnects.
func streamHandler[T any](h *hub[T]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		values, stop := h.Subscribe()
		defer stop()

		// The client never sends anything; reading only notices the close.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case v := <-values:
				if err := conn.WriteJSON(v); err != nil {
					log.Printf("web: websocket write error: %v", err)
					return
				}
			}
		}
	}
}
