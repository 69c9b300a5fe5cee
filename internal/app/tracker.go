// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/head_tracker/internal/calibration"
	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/device"
	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/heading"
	"github.com/relabs-tech/head_tracker/internal/orientation"
	"github.com/relabs-tech/head_tracker/internal/report"
)

// trackerConfigFlags is what the tracker asks of the firmware: apply
// its factory calibration, keep refining it, and keep streaming while
// commands or motion keep arriving.
const trackerConfigFlags = report.FlagUseCalibration |
	report.FlagAutoCalibration |
	report.FlagMotionKeepAlive |
	report.FlagCommandKeepAlive

// RunTracker opens the tracker device, fuses its samples and publishes
// the orientation until interrupted or until a replay ends.
func RunTracker() error {
	log.Println("starting head-tracker orientation producer")

	cfg := config.Get()

	// --- device ---
	dev, err := device.Open(cfg)
	if err != nil {
		return err
	}
	defer dev.Close()
	info := dev.Info()
	log.Printf("tracker: using %s (serial %q) over %s", info.Product, info.SerialNumber, cfg.DeviceTransport)

	keepAlive := time.Duration(cfg.KeepAliveIntervalMs) * time.Millisecond
	cmd := device.NewCommander(dev)
	rr, err := cmd.SetRange(report.SensorRange{
		MaxAcceleration:  cfg.SensorMaxAccel,
		MaxRotationRate:  cfg.SensorMaxGyro,
		MaxMagneticField: cfg.SensorMaxMag,
	})
	if err != nil {
		log.Printf("tracker: %v", err)
	} else {
		log.Printf("tracker: sensor range %+v", rr.SensorRange())
	}
	if err := cmd.SetConfig(report.SensorConfig{
		Flags:             trackerConfigFlags,
		KeepAliveInterval: uint16(cfg.KeepAliveIntervalMs),
	}); err != nil {
		log.Printf("tracker: %v", err)
	}

	// --- fusion ---
	engine := newEngine(cfg, info)
	var store fusion.CalibrationStore
	if cfg.CalibrationFile != "" {
		store = calibration.NewFileStore(cfg.CalibrationFile)
		switch err := engine.LoadMagCalibration(store, cfg.CalibrationName); {
		case err == nil:
			log.Printf("tracker: loaded calibration %q from %s", cfg.CalibrationName, cfg.CalibrationFile)
		case errors.Is(err, calibration.ErrNotFound):
			log.Printf("tracker: no calibration %q stored for this device", cfg.CalibrationName)
		default:
			log.Printf("tracker: calibration load: %v", err)
		}
	}
	conv := report.NewConverter(converterOptions(cfg))

	// --- connect to MQTT ---
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDTracker)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribeJSON(client, cfg.TopicCalibrationSet, func(c CalibrationCommand) {
		if err := applyCalibrationCommand(engine, store, c); err != nil {
			log.Printf("tracker: calibration %s: %v", c.Action, err)
			return
		}
		log.Printf("tracker: calibration %s applied", c.Action)
	}); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go cmd.KeepAlive(ctx, keepAlive)

	if cfg.HeadingSerialPort != "" {
		if err := startHeadingMonitor(ctx, cfg, client, engine); err != nil {
			log.Printf("tracker: heading reference disabled: %v", err)
		}
	}

	pumpErr := make(chan error, 1)
	go func() {
		n, err := pump(dev, conv, engine)
		log.Printf("tracker: device stopped after %d reports", n)
		pumpErr <- err
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	log.Println("tracker: starting publish loop")
	ticker := time.NewTicker(time.Duration(cfg.PublishIntervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			log.Println("tracker: shutting down")
			return nil

		case err := <-pumpErr:
			if errors.Is(err, io.EOF) {
				log.Println("tracker: replay finished")
				return nil
			}
			return err

		case <-ticker.C:
			if engine.Stage() == 0 {
				continue
			}
			publishFrame(client, cfg, engine.Snapshot())
		}
	}
}

func publishFrame(client mqtt.Client, cfg *config.Config, f fusion.Frame) {
	pose := orientation.FromQuaternion(f.Predicted)
	if err := publishJSON(client, cfg.TopicPose, true, pose); err != nil {
		log.Printf("tracker: %v", err)
		return
	}
	if err := publishJSON(client, cfg.TopicQuat, true, QuatMessage{
		Orientation: f.Orientation,
		Predicted:   f.Predicted,
		Stage:       f.Stage,
	}); err != nil {
		log.Printf("tracker: %v", err)
	}
	if err := publishJSON(client, cfg.TopicSample, false, f); err != nil {
		log.Printf("tracker: %v", err)
	}
}

// startHeadingMonitor compares the fused yaw with an NMEA compass and
// publishes the drift for every compass reading.
func startHeadingMonitor(ctx context.Context, cfg *config.Config, client mqtt.Client, engine *fusion.Engine) error {
	port, err := heading.OpenSerial(cfg.HeadingSerialPort, cfg.HeadingBaudRate)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	var drift heading.DriftTracker
	go func() {
		err := heading.Monitor(port, func(r heading.Reading) {
			yaw := orientation.FromQuaternion(engine.GetOrientation()).Yaw
			d := drift.Update(r, yaw)
			if err := publishJSON(client, cfg.TopicHeadingDrift, true, d); err != nil {
				log.Printf("tracker: %v", err)
			}
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("tracker: heading reference stopped: %v", err)
		}
	}()
	return nil
}
