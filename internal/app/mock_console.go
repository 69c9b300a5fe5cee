// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/device"
	"github.com/relabs-tech/head_tracker/internal/orientation"
	"github.com/relabs-tech/head_tracker/internal/report"
)

// RunMockConsole fuses a simulated tracker in real time and prints the
// fused pose next to the motion it was generated from. It needs neither
// hardware nor a broker.
func RunMockConsole() error {
	cfg := config.Default()
	dev := device.NewMock(device.MockOptions{Paced: true})
	defer dev.Close()

	engine := newEngine(cfg, dev.Info())
	conv := report.NewConverter(converterOptions(cfg))
	errCh := make(chan error, 1)
	go func() {
		_, err := pump(dev, conv, engine)
		errCh <- err
	}()

	fused := orientation.NewEngineSource(engine)
	truth := orientation.NewMockSource()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-errCh:
			return err
		case <-ticker.C:
		}

		pose, err := fused.Next()
		if errors.Is(err, orientation.ErrNoSamples) {
			continue
		}
		if err != nil {
			return err
		}
		want, _ := truth.Next()

		fmt.Printf(
			"ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f   (motion %6.2f %6.2f %6.2f)\n",
			pose.Roll, pose.Pitch, pose.Yaw,
			want.Roll, want.Pitch, want.Yaw,
		)
	}
}
