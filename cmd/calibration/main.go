// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Guided magnetometer calibration for the head tracker.
//  1. Stillness check: the tracker rests while the gyro noise and the
//     residual bias left by the firmware are measured.
//  2. Mag: the tracker is turned through every orientation while raw
//     magnetometer readings are captured.
//  3. The readings are fitted to an ellipsoid and the resulting
//     correction matrix is stored in the device profile file, with yaw
//     correction enabled, under the chosen name.
//
// A JSON summary with the fit and the confidence figures is written to
// the current directory.
//
// Run:
//
//	go run ./cmd/calibration -config tracker_config.txt -name desk
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/relabs-tech/head_tracker/internal/calibration"
	"github.com/relabs-tech/head_tracker/internal/config"
	"github.com/relabs-tech/head_tracker/internal/device"
	"github.com/relabs-tech/head_tracker/internal/filter"
	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/geom"
	"github.com/relabs-tech/head_tracker/internal/report"
)

const (
	stillDuration      = 5 * time.Second
	magDurationDefault = 60 * time.Second

	// Gyro noise thresholds in rad/s
	stillStdGood = 0.002
	stillStdBad  = 0.02

	// Confidence floor (we never want hard zero unless we error out)
	confFloor = 0.05
)

// ---------- Data model (JSON output) ----------

type PhaseStats struct {
	Samples     int          `json:"samples"`
	DurationSec float64      `json:"duration_sec"`
	Mean        geom.Vector3 `json:"mean"`
	StdDev      geom.Vector3 `json:"stddev"`
	Notes       []string     `json:"notes,omitempty"`
}

type CalibrationResult struct {
	SchemaVersion int    `json:"schema_version"`
	CalibrationAt string `json:"calibration_at"` // RFC3339
	Serial        string `json:"serial"`
	Name          string `json:"name"`

	// Residual gyro bias after the firmware's own calibration, rad/s
	GyroResidualBias geom.Vector3 `json:"gyro_residual_bias"`
	GyroStillStats   PhaseStats   `json:"gyro_still_stats"`

	MagFit   calibration.Fit `json:"mag_fit"`
	MagStats PhaseStats      `json:"mag_stats"`

	Confidence struct {
		Still   float64 `json:"still"`
		Mag     float64 `json:"mag"`
		Overall float64 `json:"overall"`
	} `json:"confidence"`
}

// readFunc returns the samples carried by the next input report.
type readFunc func() ([]report.Sample, error)

// ---------- Main ----------

func main() {
	in := bufio.NewReader(os.Stdin)

	configPath := flag.String("config", "tracker_config.txt", "Path to configuration file")
	name := flag.String("name", "", "Calibration name (default: CALIBRATION_NAME)")
	maxDur := flag.Duration("max", magDurationDefault, "Longest magnetometer capture")
	flag.Parse()

	fmt.Println("=== Guided Magnetometer Calibration ===")
	fmt.Println()

	if err := config.InitGlobal(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load config from %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	cfg := config.Get()
	if *name == "" {
		*name = cfg.CalibrationName
	}
	if cfg.CalibrationFile == "" {
		fatal(fmt.Errorf("CALIBRATION_FILE is not set in %s", *configPath))
	}

	dev, err := device.Open(cfg)
	if err != nil {
		fatal(err)
	}
	defer dev.Close()
	info := dev.Info()
	fmt.Printf("Tracker: %s (serial %q)\n\n", info.Product, info.SerialNumber)

	// The tracker stops streaming unless it is kept alive.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := device.NewCommander(dev)
	go cmd.KeepAlive(ctx, time.Duration(cfg.KeepAliveIntervalMs)*time.Millisecond)

	readFn := newReader(dev, report.NewConverter(report.ConverterOptions{
		SwapMagYZ:          cfg.MagSwapYZ,
		ConvertHMDToSensor: cfg.ConvertHMDToSensor,
	}))

	res := CalibrationResult{
		SchemaVersion: 1,
		CalibrationAt: time.Now().Format(time.RFC3339),
		Serial:        info.SerialNumber,
		Name:          *name,
	}

	// ---------------- Stillness ----------------
	fmt.Println("Step 1/3: Stillness check")
	fmt.Println("Place the tracker on a stable surface and do not touch it.")
	waitEnter(in, "Press ENTER to start (5s)...")

	_, still, err := captureSamples(readFn, stillDuration, rotationRates)
	if err != nil {
		fatal(err)
	}
	res.GyroStillStats = still
	res.GyroResidualBias = still.Mean
	res.Confidence.Still = stillnessConfidence(still.StdDev)

	fmt.Printf("Residual gyro bias (rad/s): X=%.4f Y=%.4f Z=%.4f | confidence=%.2f\n",
		still.Mean.X, still.Mean.Y, still.Mean.Z, res.Confidence.Still)

	// ---------------- Mag capture ----------------
	fmt.Println("\nStep 2/3: Magnetometer capture")
	fmt.Println("Turn the tracker slowly through all orientations (3D).")
	fmt.Println("Move away from large metal objects and power cables if possible.")
	fmt.Println("You can stop early by pressing ENTER again.")
	fmt.Println()

	waitEnter(in, fmt.Sprintf("Press ENTER to start magnetometer capture (max %v)...", *maxDur))

	magSamples, magStats, err := captureUntilEnterOrTimeout(in, readFn, *maxDur, lastField)
	if err != nil {
		fatal(err)
	}
	res.MagStats = magStats

	// ---------------- Fit + store ----------------
	fmt.Println("\nStep 3/3: Fit")
	fit, err := calibration.FitMagnetometer(magSamples)
	if err != nil {
		fatal(err)
	}
	res.MagFit = fit
	res.Confidence.Mag = fit.Confidence / 100
	res.Confidence.Overall = overallConfidence(res.Confidence.Still, res.Confidence.Mag)

	fmt.Printf("Method: %s from %d readings\n", fit.Method, fit.Samples)
	fmt.Printf("Offset (gauss): X=%.4f Y=%.4f Z=%.4f\n", fit.Offset.X, fit.Offset.Y, fit.Offset.Z)
	fmt.Printf("Scale:          X=%.4f Y=%.4f Z=%.4f\n", fit.Scale.X, fit.Scale.Y, fit.Scale.Z)
	fmt.Printf("Field strength: %.3f gauss, residual %.3f, coverage %.1f%%\n",
		fit.FieldStrength, fit.Residual, fit.Confidence)

	engine := fusion.New()
	engine.AttachToSensor(info)
	engine.SetMagCalibration(fit.Matrix)
	engine.SetYawCorrectionEnabled(true)
	store := calibration.NewFileStore(cfg.CalibrationFile)
	if err := engine.SaveMagCalibration(store, *name); err != nil {
		fatal(err)
	}
	fmt.Printf("Stored calibration %q in %s\n", *name, store.Path())

	if err := writeResult(res); err != nil {
		fatal(err)
	}

	fmt.Println("\nCalibration complete.")
	fmt.Printf("Overall confidence: %.2f\n", res.Confidence.Overall)
	fmt.Println("Restart the tracker, or publish a \"load\" command, to use it.")
}

// ---------- Sampling helpers ----------

func newReader(dev device.Device, conv *report.Converter) readFunc {
	buf := make([]byte, device.MaxReportSize)
	return func() ([]report.Sample, error) {
		for {
			n, err := dev.ReadReport(buf)
			if err != nil {
				return nil, err
			}
			msg, err := report.Decode(buf[:n])
			if err != nil || msg.Type != report.MessageSensors {
				continue
			}
			return conv.Convert(msg.Sensors), nil
		}
	}
}

// rotationRates keeps every gyro reading of a report.
func rotationRates(samples []report.Sample) []geom.Vector3 {
	out := make([]geom.Vector3, len(samples))
	for i, s := range samples {
		out[i] = s.RotationRate
	}
	return out
}

// lastField keeps one magnetometer reading per report; the device
// repeats it for every sample in the report.
func lastField(samples []report.Sample) []geom.Vector3 {
	if len(samples) == 0 {
		return nil
	}
	return []geom.Vector3{samples[len(samples)-1].MagneticField}
}

func captureSamples(readFn readFunc, dur time.Duration, f func([]report.Sample) []geom.Vector3) ([]geom.Vector3, PhaseStats, error) {
	start := time.Now()
	deadline := start.Add(dur)

	var values []geom.Vector3
	for time.Now().Before(deadline) {
		s, err := readFn()
		if err != nil {
			return nil, PhaseStats{}, err
		}
		values = append(values, f(s)...)
	}
	return values, computeStats(values, time.Since(start)), nil
}

func captureUntilEnterOrTimeout(in *bufio.Reader, readFn readFunc, maxDur time.Duration, f func([]report.Sample) []geom.Vector3) ([]geom.Vector3, PhaseStats, error) {
	start := time.Now()
	deadline := start.Add(maxDur)

	// Non-blocking ENTER detector: we start a goroutine waiting for newline
	stopCh := make(chan struct{}, 1)
	go func() {
		_, _ = in.ReadString('\n')
		stopCh <- struct{}{}
	}()

	var values []geom.Vector3
	lastReport := 0
	for {
		select {
		case <-stopCh:
			return values, computeStats(values, time.Since(start)), nil
		default:
			if time.Now().After(deadline) {
				stats := computeStats(values, time.Since(start))
				stats.Notes = append(stats.Notes, "stopped_by_timeout")
				return values, stats, nil
			}
			s, err := readFn()
			if err != nil {
				return nil, PhaseStats{}, err
			}
			values = append(values, f(s)...)
			if len(values)-lastReport >= 100 {
				lastReport = len(values)
				fmt.Printf("  %d readings\n", len(values))
			}
		}
	}
}

// computeStats runs the values through a filter sized to hold them all.
func computeStats(values []geom.Vector3, dur time.Duration) PhaseStats {
	n := len(values)
	if n == 0 {
		return PhaseStats{Samples: 0, DurationSec: dur.Seconds()}
	}
	vf := filter.NewVectorFilter(n)
	for _, v := range values {
		vf.AddElement(v)
	}
	variance := vf.Variance()
	return PhaseStats{
		Samples:     n,
		DurationSec: dur.Seconds(),
		Mean:        vf.Mean(),
		StdDev:      geom.Vec3(math.Sqrt(variance.X), math.Sqrt(variance.Y), math.Sqrt(variance.Z)),
	}
}

// ---------- Confidence heuristics ----------

func stillnessConfidence(std geom.Vector3) float64 {
	// Use average std dev across axes.
	s := (std.X + std.Y + std.Z) / 3
	switch {
	case s <= stillStdGood:
		return 1.0
	case s >= stillStdBad:
		return confFloor
	default:
		// Linear interpolation between good and bad
		t := (s - stillStdGood) / (stillStdBad - stillStdGood)
		return clamp01(1.0 - 0.95*t)
	}
}

func overallConfidence(still, mag float64) float64 {
	// mag coverage matters most for yaw
	return clamp01(0.3*still + 0.7*mag)
}

// ---------- Output ----------

func writeResult(res CalibrationResult) error {
	ts := time.Now().Format("2006-01-02T15-04-05Z07-00")
	name := fmt.Sprintf("%s_%s_%s_mag_calibration.json", res.Serial, res.Name, ts)

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(name, b, 0o644); err != nil {
		return err
	}
	fmt.Printf("\nWrote: %s\n", name)
	return nil
}

// ---------- Console helpers ----------

func waitEnter(in *bufio.Reader, prompt string) {
	fmt.Print(prompt)
	_, _ = in.ReadString('\n')
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
	os.Exit(1)
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
