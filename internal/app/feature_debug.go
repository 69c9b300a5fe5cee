// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/head_tracker/internal/device"
	"github.com/relabs-tech/head_tracker/internal/report"
)

// Feature names used on the debug websocket.
const (
	featureRange     = "range"
	featureConfig    = "config"
	featureKeepAlive = "keep_alive"
)

var configFlagNames = []struct {
	flag report.ConfigFlags
	name string
}{
	{report.FlagRawMode, "raw_mode"},
	{report.FlagCalibrationTest, "calibration_test"},
	{report.FlagUseCalibration, "use_calibration"},
	{report.FlagAutoCalibration, "auto_calibration"},
	{report.FlagMotionKeepAlive, "motion_keep_alive"},
	{report.FlagCommandKeepAlive, "command_keep_alive"},
	{report.FlagSensorCoordinates, "sensor_coordinates"},
}

func flagNames(f report.ConfigFlags) []string {
	names := []string{}
	for _, fn := range configFlagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return names
}

func parseFlagNames(names []string) (report.ConfigFlags, error) {
	var f report.ConfigFlags
next:
	for _, n := range names {
		for _, fn := range configFlagNames {
			if strings.EqualFold(n, fn.name) {
				f |= fn.flag
				continue next
			}
		}
		return 0, fmt.Errorf("unknown config flag %q", n)
	}
	return f, nil
}

// FeatureCmd is any command sent by the debug page.
type FeatureCmd struct {
	Action  string `json:"action"` // read, read_all, set_range, set_config, keep_alive, export_config
	Feature string `json:"feature,omitempty"`

	Range *report.SensorRange `json:"range,omitempty"`

	Flags             []string `json:"flags,omitempty"`
	PacketInterval    uint8    `json:"packet_interval,omitempty"`
	KeepAliveInterval uint16   `json:"keep_alive_interval,omitempty"` // ms
}

// FeatureResponse is sent back for every command.
type FeatureResponse struct {
	Type      string         `json:"type"` // feature_data, status, export_config, error
	Feature   string         `json:"feature,omitempty"`
	Hex       string         `json:"hex,omitempty"`
	Decoded   any            `json:"decoded,omitempty"`
	Features  map[string]any `json:"features,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Message   string         `json:"message,omitempty"`
	Config    string         `json:"config,omitempty"`
	Filename  string         `json:"filename,omitempty"`
}

// DecodedConfig is a SensorConfig with its flags spelled out.
type DecodedConfig struct {
	CommandID         uint16   `json:"command_id"`
	Flags             []string `json:"flags"`
	PacketInterval    uint8    `json:"packet_interval"`
	KeepAliveInterval uint16   `json:"keep_alive_interval"`
}

// DecodedRange is a RangeReport with its SI equivalent.
type DecodedRange struct {
	CommandID  uint16             `json:"command_id"`
	AccelScale uint8              `json:"accel_scale_g"`
	GyroScale  uint16             `json:"gyro_scale_dps"`
	MagScale   uint16             `json:"mag_scale_mgauss"`
	SI         report.SensorRange `json:"si"`
	Clamped    []string           `json:"clamped,omitempty"`
}

// FeatureConfigFile is the exported snapshot of a tracker's settings.
type FeatureConfigFile struct {
	Version   int           `json:"version"`
	Serial    string        `json:"serial"`
	Timestamp string        `json:"timestamp"`
	Range     DecodedRange  `json:"range"`
	Config    DecodedConfig `json:"config"`
}

func decodeRange(rr report.RangeReport) DecodedRange {
	return DecodedRange{
		CommandID:  rr.CommandID,
		AccelScale: rr.AccelScale,
		GyroScale:  rr.GyroScale,
		MagScale:   rr.MagScale,
		SI:         rr.SensorRange(),
		Clamped:    rr.Clamped,
	}
}

func decodeConfig(c report.SensorConfig) DecodedConfig {
	return DecodedConfig{
		CommandID:         c.CommandID,
		Flags:             flagNames(c.Flags),
		PacketInterval:    c.PacketInterval,
		KeepAliveInterval: c.KeepAliveInterval,
	}
}

func hexBytes(b []byte) string {
	return fmt.Sprintf("% X", b)
}

// FeatureDebugger owns the device for the debug tool. Input reports are
// read in the background so /api/report always has the latest one.
type FeatureDebugger struct {
	dev     device.Device
	cmd     *device.Commander
	mu      sync.Mutex // serialises feature traffic across sessions
	reports *hub[report.TrackerSensors]
}

func NewFeatureDebugger(dev device.Device) *FeatureDebugger {
	return &FeatureDebugger{
		dev:     dev,
		cmd:     device.NewCommander(dev),
		reports: newHub[report.TrackerSensors](),
	}
}

// ReadReports decodes input reports until the device fails or closes.
func (d *FeatureDebugger) ReadReports() error {
	buf := make([]byte, device.MaxReportSize)
	for {
		n, err := d.dev.ReadReport(buf)
		if err != nil {
			return err
		}
		msg, err := report.Decode(buf[:n])
		if err != nil {
			log.Printf("feature_debug: %v", err)
			continue
		}
		if msg.Type == report.MessageSensors {
			d.reports.Publish(msg.Sensors)
		}
	}
}

// Handler serves the websocket, the live report API and the page.
func (d *FeatureDebugger) Handler(page string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", d.HandleWS)
	mux.HandleFunc("/api/report", d.HandleReport)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, page)
	})
	return mux
}

// HandleReport serves the latest decoded input report.
func (d *FeatureDebugger) HandleReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	s, ok := d.reports.Last()
	if !ok {
		http.Error(w, `{"error": "no report yet"}`, http.StatusServiceUnavailable)
		return
	}
	json.NewEncoder(w).Encode(s)
}

// HandleWS handles the WebSocket connection for feature debugging
func (d *FeatureDebugger) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("feature_debug: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	for {
		var cmd FeatureCmd
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("feature_debug: websocket error: %v", err)
			}
			return
		}

		resp, err := d.Execute(cmd)
		if err != nil {
			resp = FeatureResponse{Type: "error", Message: err.Error()}
		}
		if err := conn.WriteJSON(resp); err != nil {
			log.Printf("feature_debug: websocket write error: %v", err)
			return
		}
	}
}

// Execute runs one command against the device.
func (d *FeatureDebugger) Execute(cmd FeatureCmd) (FeatureResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now().Format(time.RFC3339)

	switch cmd.Action {
	case "read":
		resp, err := d.read(cmd.Feature)
		resp.Timestamp = now
		return resp, err

	case "read_all":
		all := make(map[string]any)
		for _, f := range []string{featureRange, featureConfig, featureKeepAlive} {
			resp, err := d.read(f)
			if err != nil {
				return FeatureResponse{}, err
			}
			all[f] = resp.Decoded
		}
		return FeatureResponse{Type: "feature_data", Features: all, Timestamp: now}, nil

	case "set_range":
		if cmd.Range == nil {
			return FeatureResponse{}, errors.New("missing range field")
		}
		rr, err := d.cmd.SetRange(*cmd.Range)
		if err != nil {
			return FeatureResponse{}, err
		}
		log.Printf("feature_debug: range set to %dg %ddps %dmG", rr.AccelScale, rr.GyroScale, rr.MagScale)
		return FeatureResponse{
			Type:      "status",
			Feature:   featureRange,
			Hex:       hexBytes(rr.Pack()),
			Decoded:   decodeRange(rr),
			Timestamp: now,
			Message:   "range written",
		}, nil

	case "set_config":
		flags, err := parseFlagNames(cmd.Flags)
		if err != nil {
			return FeatureResponse{}, err
		}
		c := report.SensorConfig{
			Flags:             flags,
			PacketInterval:    cmd.PacketInterval,
			KeepAliveInterval: cmd.KeepAliveInterval,
		}
		if err := d.cmd.SetConfig(c); err != nil {
			return FeatureResponse{}, err
		}
		log.Printf("feature_debug: config set to %v", flagNames(flags))
		return FeatureResponse{
			Type:      "status",
			Feature:   featureConfig,
			Hex:       hexBytes(c.Pack()),
			Decoded:   decodeConfig(c),
			Timestamp: now,
			Message:   "config written",
		}, nil

	case "keep_alive":
		if cmd.KeepAliveInterval == 0 {
			return FeatureResponse{}, errors.New("missing keep_alive_interval field")
		}
		if err := d.cmd.SendKeepAlive(time.Duration(cmd.KeepAliveInterval) * time.Millisecond); err != nil {
			return FeatureResponse{}, err
		}
		return FeatureResponse{
			Type:      "status",
			Feature:   featureKeepAlive,
			Timestamp: now,
			Message:   fmt.Sprintf("keep-alive sent for %dms", cmd.KeepAliveInterval),
		}, nil

	case "export_config":
		return d.export()

	default:
		return FeatureResponse{}, fmt.Errorf("unknown action %q", cmd.Action)
	}
}

func (d *FeatureDebugger) read(feature string) (FeatureResponse, error) {
	resp := FeatureResponse{Type: "feature_data", Feature: feature}
	switch feature {
	case featureRange:
		rr, err := d.cmd.ReadRange()
		if err != nil {
			return resp, err
		}
		resp.Hex, resp.Decoded = hexBytes(rr.Pack()), decodeRange(rr)
	case featureConfig:
		c, err := d.cmd.ReadConfig()
		if err != nil {
			return resp, err
		}
		resp.Hex, resp.Decoded = hexBytes(c.Pack()), decodeConfig(c)
	case featureKeepAlive:
		ka, err := d.cmd.ReadKeepAlive()
		if err != nil {
			return resp, err
		}
		resp.Hex, resp.Decoded = hexBytes(ka.Pack()), ka
	default:
		return resp, fmt.Errorf("unknown feature %q", feature)
	}
	return resp, nil
}

func (d *FeatureDebugger) export() (FeatureResponse, error) {
	rr, err := d.cmd.ReadRange()
	if err != nil {
		return FeatureResponse{}, fmt.Errorf("export error: %w", err)
	}
	c, err := d.cmd.ReadConfig()
	if err != nil {
		return FeatureResponse{}, fmt.Errorf("export error: %w", err)
	}

	serial := d.dev.Info().SerialNumber
	file := FeatureConfigFile{
		Version:   1,
		Serial:    serial,
		Timestamp: time.Now().Format(time.RFC3339),
		Range:     decodeRange(rr),
		Config:    decodeConfig(c),
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return FeatureResponse{}, err
	}
	return FeatureResponse{
		Type:     "export_config",
		Message:  "config exported",
		Config:   string(data),
		Filename: fmt.Sprintf("%s_%s_features.json", serial, time.Now().Format("20060102_150405")),
	}, nil
}
