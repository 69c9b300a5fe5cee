// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"fmt"
	"log"

	"github.com/relabs-tech/head_tracker/internal/calibration"
	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/device"
	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/geom"
	"github.com/relabs-tech/head_tracker/internal/report"
)

// newEngine builds a fusion engine configured from cfg and attached to
// the device described by info.
func newEngine(cfg *config.Config, info fusion.SensorInfo) *fusion.Engine {
	e := fusion.New()
	e.SetAccelGain(cfg.AccelGain)
	e.SetGravityEnabled(cfg.GravityCorrection)
	e.SetYawCorrectionEnabled(cfg.YawCorrection)
	e.SetPrediction(cfg.PredictionDT, cfg.Prediction)
	if cfg.Prediction {
		e.SetPredictor(fusion.ConstantRatePredictor{})
	}
	e.AttachToSensor(info)
	return e
}

func converterOptions(cfg *config.Config) report.ConverterOptions {
	return report.ConverterOptions{
		SwapMagYZ:          cfg.MagSwapYZ,
		ConvertHMDToSensor: cfg.ConvertHMDToSensor,
	}
}

// pump reads input reports until the device fails and feeds every
// sample they carry to the engine. Undecodable reports are logged and
// skipped.
func pump(dev device.Device, conv *report.Converter, engine *fusion.Engine) (reports int, err error) {
	buf := make([]byte, device.MaxReportSize)
	for {
		n, err := dev.ReadReport(buf)
		if err != nil {
			return reports, err
		}
		msg, err := report.Decode(buf[:n])
		if err != nil {
			log.Printf("tracker: dropping report: %v", err)
			continue
		}
		if msg.Type != report.MessageSensors {
			continue
		}
		reports++
		for _, s := range conv.Convert(msg.Sensors) {
			engine.OnSample(s)
		}
	}
}

// applyCalibrationCommand carries out cmd on the engine. store may be nil
// when no calibration file is configured.
func applyCalibrationCommand(engine *fusion.Engine, store fusion.CalibrationStore, cmd CalibrationCommand) error {
	name := cmd.Name
	switch cmd.Action {
	case CalibrationSet:
		m, err := geom.ParseMatrix4(cmd.Matrix)
		if err != nil {
			return fmt.Errorf("calibration matrix: %w", err)
		}
		engine.SetMagCalibration(m)
		engine.ClearMagReferences()
		if cmd.YawCorrection != nil {
			engine.SetYawCorrectionEnabled(*cmd.YawCorrection)
		}
		if name == "" {
			return nil
		}
		return saveCalibration(engine, store, name)

	case CalibrationClear:
		engine.ClearMagCalibration()
		engine.ClearMagReferences()
		return nil

	case CalibrationSave:
		if name == "" {
			name = calibration.DefaultName
		}
		return saveCalibration(engine, store, name)

	case CalibrationLoad:
		if store == nil {
			return errNoStore
		}
		if name == "" {
			name = calibration.DefaultName
		}
		if err := engine.LoadMagCalibration(store, name); err != nil {
			return err
		}
		engine.ClearMagReferences()
		if cmd.YawCorrection != nil {
			engine.SetYawCorrectionEnabled(*cmd.YawCorrection)
		}
		return nil

	case CalibrationReset:
		engine.Reset()
		return nil

	default:
		return fmt.Errorf("unknown calibration action %q", cmd.Action)
	}
}

var errNoStore = errors.New("no CALIBRATION_FILE configured")

func saveCalibration(engine *fusion.Engine, store fusion.CalibrationStore, name string) error {
	if store == nil {
		return errNoStore
	}
	return engine.SaveMagCalibration(store, name)
}
