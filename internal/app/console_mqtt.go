// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/heading"
	"github.com/relabs-tech/head_tracker/internal/orientation"
)

var (
	poseColor   = color.New(color.FgCyan, color.Bold)
	sampleColor = color.New(color.FgWhite)
	driftColor  = color.New(color.FgYellow)
	warnColor   = color.New(color.FgRed, color.Bold)
)

// driftWarnDeg is where the console starts flagging heading drift.
const driftWarnDeg = 5.0

func formatPose(p orientation.Pose) string {
	return fmt.Sprintf("[POSE]  ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f", p.Roll, p.Pitch, p.Yaw)
}

func formatFrame(f fusion.Frame) string {
	mag := "uncal"
	if f.MagCalibrated {
		mag = fmt.Sprintf("cal refs=%d", f.MagReferences)
		if f.YawCorrectionLive {
			mag += " yaw"
		}
	}
	a, g, m := f.Acceleration, f.AngularVelocity, f.Magnetometer
	return fmt.Sprintf(
		"[SMPL] #%d t=%.2fs  a=(%6.2f %6.2f %6.2f)  w=(%6.3f %6.3f %6.3f)  m=(%6.3f %6.3f %6.3f) %s  %.1f°C",
		f.Stage, f.RunningTime, a.X, a.Y, a.Z, g.X, g.Y, g.Z, m.X, m.Y, m.Z, mag, f.Temperature,
	)
}

func formatDrift(d heading.Drift) string {
	return fmt.Sprintf(
		"[HDG ]  %s ref=%6.2f fused=%6.2f drift=%+6.2f max=%5.2f",
		d.Source, d.Reference, d.Fused, d.Drift, d.MaxDrift,
	)
}

func RunConsoleMQTT() error {
	cfg := config.Get()

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}

	if err := subscribeJSON(client, cfg.TopicPose, func(p orientation.Pose) {
		poseColor.Println(formatPose(p))
	}); err != nil {
		return err
	}

	if err := subscribeJSON(client, cfg.TopicSample, func(f fusion.Frame) {
		sampleColor.Println(formatFrame(f))
	}); err != nil {
		return err
	}

	if err := subscribeJSON(client, cfg.TopicHeadingDrift, func(d heading.Drift) {
		c := driftColor
		if d.Drift > driftWarnDeg || d.Drift < -driftWarnDeg {
			c = warnColor
		}
		c.Println(formatDrift(d))
	}); err != nil {
		return err
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
