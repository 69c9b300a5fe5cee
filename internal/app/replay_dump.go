// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/device"
	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/orientation"
	"github.com/relabs-tech/head_tracker/internal/report"
)

// RunReplayDump fuses a recording as fast as it can be read and writes
// one line per every-th sample to w. cfg supplies the fusion settings;
// its transport keys are ignored.
func RunReplayDump(cfg *config.Config, path string, every int, w io.Writer) error {
	dev, err := device.OpenReplay(path, false)
	if err != nil {
		return err
	}
	defer dev.Close()

	if every < 1 {
		every = 1
	}
	engine := newEngine(cfg, fusion.SensorInfo{Product: "replay", SerialNumber: cfg.DeviceSerialNumber})
	engine.Subscribe(func(f fusion.Frame) {
		if f.Stage%uint64(every) != 0 {
			return
		}
		p := orientation.FromQuaternion(f.Orientation)
		fmt.Fprintf(w, "%8d %9.3f  ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f  |B|=%.3f  refs=%d\n",
			f.Stage, f.RunningTime, p.Roll, p.Pitch, p.Yaw, f.Magnetometer.Length(), f.MagReferences)
	})

	n, err := pump(dev, report.NewConverter(converterOptions(cfg)), engine)
	log.Printf("replay: %d sensor reports, %d samples, %.3fs", n, engine.Stage(), engine.RunningTime())
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
