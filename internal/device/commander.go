// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package device

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/relabs-tech/head_tracker/internal/report"
)

// Commander sends feature commands to a device, numbering each one so
// the echo in TrackerSensors.LastCommandID can be matched.
type Commander struct {
	dev    Device
	nextID atomic.Uint32
}

func NewCommander(dev Device) *Commander {
	return &Commander{dev: dev}
}

func (c *Commander) commandID() uint16 {
	return uint16(c.nextID.Add(1))
}

// SetRange requests full-scale ranges at least as wide as r and returns
// the report that was sent, rounded to hardware steps.
func (c *Commander) SetRange(r report.SensorRange) (report.RangeReport, error) {
	rr := report.NewRangeReport(r, c.commandID())
	if err := c.dev.SetFeature(rr.Pack()); err != nil {
		return rr, fmt.Errorf("device: set range: %w", err)
	}
	return rr, nil
}

func (c *Commander) SetConfig(cfg report.SensorConfig) error {
	cfg.CommandID = c.commandID()
	if err := c.dev.SetFeature(cfg.Pack()); err != nil {
		return fmt.Errorf("device: set config: %w", err)
	}
	return nil
}

func (c *Commander) SendKeepAlive(interval time.Duration) error {
	ka := report.KeepAlive{CommandID: c.commandID(), Interval: uint16(interval / time.Millisecond)}
	if err := c.dev.SetFeature(ka.Pack()); err != nil {
		return fmt.Errorf("device: keep-alive: %w", err)
	}
	return nil
}

func (c *Commander) ReadRange() (report.RangeReport, error) {
	buf := make([]byte, report.RangeSize)
	buf[0] = report.FeatureRange
	n, err := c.dev.GetFeature(buf)
	if err != nil {
		return report.RangeReport{}, fmt.Errorf("device: get range: %w", err)
	}
	return report.UnpackRange(buf[:n])
}

func (c *Commander) ReadConfig() (report.SensorConfig, error) {
	buf := make([]byte, report.ConfigSize)
	buf[0] = report.FeatureConfig
	n, err := c.dev.GetFeature(buf)
	if err != nil {
		return report.SensorConfig{}, fmt.Errorf("device: get config: %w", err)
	}
	return report.UnpackConfig(buf[:n])
}

func (c *Commander) ReadKeepAlive() (report.KeepAlive, error) {
	buf := make([]byte, report.KeepAliveSize)
	buf[0] = report.FeatureKeepAlive
	n, err := c.dev.GetFeature(buf)
	if err != nil {
		return report.KeepAlive{}, fmt.Errorf("device: get keep-alive: %w", err)
	}
	return report.UnpackKeepAlive(buf[:n])
}

// KeepAlive re-arms the device's streaming timeout until ctx is done.
// Each command asks for interval and is resent after four fifths of it.
func (c *Commander) KeepAlive(ctx context.Context, interval time.Duration) {
	if err := c.SendKeepAlive(interval); err != nil {
		log.Printf("device: %v", err)
	}
	ticker := time.NewTicker(interval * 4 / 5)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.SendKeepAlive(interval); err != nil {
				log.Printf("device: %v", err)
			}
		}
	}
}
