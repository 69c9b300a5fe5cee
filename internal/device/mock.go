// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package device

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/geom"
	"github.com/relabs-tech/head_tracker/internal/orientation"
	"github.com/relabs-tech/head_tracker/internal/report"
)

const mockSamplesPerReport = 3

// MockOptions shape the synthetic tracker.
type MockOptions struct {
	// Motion defaults to orientation.DefaultMotion.
	Motion *orientation.Motion
	// Field is the earth field in the world frame, in gauss.
	Field geom.Vector3
	// Paced releases one report every 3ms of wall time. Unpaced mocks
	// return reports as fast as they are read.
	Paced  bool
	Serial string
}

var defaultMockField = geom.Vec3(0.2, -0.4, 0.1)

type mockDevice struct {
	mu       sync.Mutex
	motion   orientation.Motion
	field    geom.Vector3
	paced    bool
	serial   string
	tick     uint16
	next     time.Time
	features map[byte][]byte
	lastCmd  uint16
	closed   bool
}

// NewMock returns a device that produces sensor reports for a head
// following a synthetic motion, encoded the way the firmware encodes
// them (magnetometer Y and Z swapped, no HMD axis conversion).
func NewMock(opts MockOptions) Device {
	m := &mockDevice{
		motion:   orientation.DefaultMotion,
		field:    defaultMockField,
		paced:    opts.Paced,
		serial:   opts.Serial,
		features: make(map[byte][]byte),
	}
	if opts.Motion != nil {
		m.motion = *opts.Motion
	}
	if opts.Field != (geom.Vector3{}) {
		m.field = opts.Field
	}
	if m.serial == "" {
		m.serial = "MOCK0001"
	}
	m.features[report.FeatureRange] = report.RangeReport{AccelScale: 4, GyroScale: 500, MagScale: 1300}.Pack()
	m.features[report.FeatureConfig] = report.SensorConfig{
		Flags:             report.FlagUseCalibration | report.FlagAutoCalibration | report.FlagMotionKeepAlive,
		KeepAliveInterval: 10000,
	}.Pack()
	m.features[report.FeatureKeepAlive] = report.KeepAlive{Interval: 10000}.Pack()
	return m
}

func counts(v float64) int32 { return int32(math.Round(v / 1e-4)) }

func countsVec(v geom.Vector3) report.Vec3i {
	return report.Vec3i{X: counts(v.X), Y: counts(v.Y), Z: counts(v.Z)}
}

func (m *mockDevice) ReadReport(buf []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	var wait time.Duration
	if m.paced {
		now := time.Now()
		if m.next.IsZero() {
			m.next = now
		}
		wait = m.next.Sub(now)
		m.next = m.next.Add(mockSamplesPerReport * time.Millisecond)
	}
	s := report.TrackerSensors{
		SampleCount:   mockSamplesPerReport,
		Timestamp:     m.tick + mockSamplesPerReport,
		LastCommandID: m.lastCmd,
		Temperature:   2500,
	}
	up := geom.Vec3(0, report.Gravity, 0)
	for i := 0; i < mockSamplesPerReport; i++ {
		t := float64(m.tick+uint16(i)) * report.TimeUnit
		s.Samples[i] = report.RawSample{
			Accel: countsVec(m.motion.Body(t, up)),
			Gyro:  countsVec(m.motion.AngularVelocity(t)),
		}
	}
	mag := m.motion.Body(float64(m.tick)*report.TimeUnit, m.field)
	s.MagX, s.MagY, s.MagZ = int16(counts(mag.X)), int16(counts(mag.Z)), int16(counts(mag.Y))
	m.tick += mockSamplesPerReport
	m.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	raw, err := s.MarshalBinary()
	if err != nil {
		return 0, err
	}
	if len(buf) < len(raw) {
		return 0, fmt.Errorf("device: buffer of %d bytes too small for %d byte report", len(buf), len(raw))
	}
	return copy(buf, raw), nil
}

func (m *mockDevice) SetFeature(buf []byte) error {
	if len(buf) < 3 {
		return fmt.Errorf("device: feature report too short (%d bytes)", len(buf))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.features[buf[0]] = append([]byte(nil), buf...)
	m.lastCmd = binary.LittleEndian.Uint16(buf[1:])
	return nil
}

func (m *mockDevice) GetFeature(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("device: empty feature buffer")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.features[buf[0]]
	if !ok {
		return 0, fmt.Errorf("device: mock has no feature report %d", buf[0])
	}
	return copy(buf, f), nil
}

func (m *mockDevice) Info() fusion.SensorInfo {
	return fusion.SensorInfo{
		Product:      "Mock Head Tracker",
		Manufacturer: "Relabs Tech",
		SerialNumber: m.serial,
	}
}

func (m *mockDevice) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
