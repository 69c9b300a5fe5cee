// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/heading"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
)

// DisplayData holds the latest data for display
type DisplayData struct {
	mu sync.RWMutex

	pose     orientation.Pose
	havePose bool

	frame     fusion.Frame
	haveFrame bool

	drift     heading.Drift
	haveDrift bool
}

// displaySnapshot is a lock-free copy of DisplayData.
type displaySnapshot struct {
	pose      orientation.Pose
	havePose  bool
	frame     fusion.Frame
	haveFrame bool
	drift     heading.Drift
	haveDrift bool
}

func (d *DisplayData) snapshot() displaySnapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return displaySnapshot{
		pose:      d.pose,
		havePose:  d.havePose,
		frame:     d.frame,
		haveFrame: d.haveFrame,
		drift:     d.drift,
		haveDrift: d.haveDrift,
	}
}

func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized on bus %q", cfg.DisplayI2CBus)

	if err := drawLines(dev, []string{"", " Head Tracker", " Waiting for", " tracker..."}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &DisplayData{}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeJSON(client, cfg.TopicPose, func(p orientation.Pose) {
		data.mu.Lock()
		data.pose, data.havePose = p, true
		data.mu.Unlock()
	}); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicSample, func(f fusion.Frame) {
		data.mu.Lock()
		data.frame, data.haveFrame = f, true
		data.mu.Unlock()
	}); err != nil {
		return err
	}
	if err := subscribeJSON(client, cfg.TopicHeadingDrift, func(d heading.Drift) {
		data.mu.Lock()
		data.drift, data.haveDrift = d, true
		data.mu.Unlock()
	}); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		if err := drawLines(dev, statusLines(data.snapshot())); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
	return nil
}

// statusLines lays out the screen: the three angles, then magnetometer
// state, then heading drift when an external reference is connected.
func statusLines(s displaySnapshot) []string {
	if !s.havePose {
		return []string{"", "Orientation", "Waiting..."}
	}
	lines := []string{
		fmt.Sprintf("R:%6.1f P:%6.1f", s.pose.Roll, s.pose.Pitch),
		fmt.Sprintf("Y:%6.1f", s.pose.Yaw),
	}

	switch {
	case !s.haveFrame:
		lines = append(lines, "Mag: ?")
	case !s.frame.MagCalibrated:
		lines = append(lines, "Mag: uncal")
	case s.frame.YawCorrectionLive:
		lines = append(lines, fmt.Sprintf("Mag: yaw ok %d", s.frame.MagReferences))
	default:
		lines = append(lines, fmt.Sprintf("Mag: cal %d", s.frame.MagReferences))
	}

	if s.haveDrift {
		lines = append(lines, fmt.Sprintf("Hdg drift:%+5.1f", s.drift.Drift))
	}
	return lines
}

// renderLines draws up to four lines of text on a blank frame.
func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		y := (i + 1) * lineHeight
		if y > displayHeight {
			break
		}
		drawer.Dot = fixed.P(0, y)
		drawer.DrawString(l)
	}
	return img
}

func drawLines(dev *ssd1306.Dev, lines []string) error {
	return dev.Draw(dev.Bounds(), renderLines(lines), image.Point{})
}
