// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Device transports.
const (
	TransportHIDRaw = "hidraw"
	TransportSerial = "serial"
	TransportReplay = "replay"
	TransportMock   = "mock"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDTracker string
	MQTTClientIDWeb     string
	MQTTClientIDConsole string
	MQTTClientIDDisplay string

	// Topics
	TopicPose           string
	TopicQuat           string
	TopicSample         string
	TopicCalibrationSet string
	TopicHeadingDrift   string

	// Device
	DeviceTransport     string // hidraw, serial, replay or mock
	DevicePath          string
	DeviceBaudRate      int
	DeviceSerialNumber  string
	KeepAliveIntervalMs int
	RecordFile          string // raw reports are appended here when set

	// Requested full-scale ranges in SI units, rounded up by the device
	SensorMaxAccel float64 // m/s²
	SensorMaxGyro  float64 // rad/s
	SensorMaxMag   float64 // gauss

	// Fusion
	AccelGain          float64
	GravityCorrection  bool
	YawCorrection      bool
	Prediction         bool
	PredictionDT       float64 // seconds
	MagSwapYZ          bool
	ConvertHMDToSensor bool

	// Calibration profiles
	CalibrationFile string
	CalibrationName string

	// External heading reference (NMEA HDT/HDG)
	HeadingSerialPort string
	HeadingBaudRate   int

	// Timing
	PublishIntervalMs int

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through Get so callers cannot swap it
//     out from under each other.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the values used for keys the file does not set.
func Default() *Config {
	return &Config{
		MQTTClientIDTracker: "head-tracker",
		MQTTClientIDWeb:     "head-tracker-web",
		MQTTClientIDConsole: "head-tracker-console",
		MQTTClientIDDisplay: "head-tracker-display",

		TopicPose:           "tracker/pose",
		TopicQuat:           "tracker/quat",
		TopicSample:         "tracker/sample",
		TopicCalibrationSet: "tracker/calibration/set",
		TopicHeadingDrift:   "tracker/heading/drift",

		DeviceTransport:     TransportHIDRaw,
		KeepAliveIntervalMs: 10000,

		SensorMaxAccel: 4 * 9.81,
		SensorMaxGyro:  8.7, // 500 deg/s
		SensorMaxMag:   1.3,

		AccelGain:         0.05,
		GravityCorrection: true,
		Prediction:        true,
		PredictionDT:      0.03,
		MagSwapYZ:         true,

		CalibrationName: "default",

		PublishIntervalMs: 20,

		WebServerPort: 8080,

		DisplayUpdateInterval: 200,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error

	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_TRACKER":
		c.MQTTClientIDTracker = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_POSE":
		c.TopicPose = value
	case "TOPIC_QUAT":
		c.TopicQuat = value
	case "TOPIC_SAMPLE":
		c.TopicSample = value
	case "TOPIC_CALIBRATION_SET":
		c.TopicCalibrationSet = value
	case "TOPIC_HEADING_DRIFT":
		c.TopicHeadingDrift = value

	// Device
	case "DEVICE_TRANSPORT":
		switch value {
		case TransportHIDRaw, TransportSerial, TransportReplay, TransportMock:
			c.DeviceTransport = value
		default:
			return fmt.Errorf("DEVICE_TRANSPORT must be hidraw, serial, replay or mock, got %q", value)
		}
	case "DEVICE_PATH":
		c.DevicePath = value
	case "DEVICE_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DEVICE_BAUD_RATE %q: %w", value, err)
		}
		c.DeviceBaudRate = rate
	case "DEVICE_SERIAL_NUMBER":
		c.DeviceSerialNumber = value
	case "RECORD_FILE":
		c.RecordFile = value
	case "KEEP_ALIVE_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid KEEP_ALIVE_INTERVAL_MS %q: %w", value, err)
		}
		if interval < 1 || interval > 0xFFFF {
			return fmt.Errorf("KEEP_ALIVE_INTERVAL_MS must be 1-65535, got %d", interval)
		}
		c.KeepAliveIntervalMs = interval

	// Sensor ranges
	case "SENSOR_MAX_ACCEL":
		c.SensorMaxAccel, err = parsePositive(key, value)
	case "SENSOR_MAX_GYRO":
		c.SensorMaxGyro, err = parsePositive(key, value)
	case "SENSOR_MAX_MAG":
		c.SensorMaxMag, err = parsePositive(key, value)

	// Fusion
	case "ACCEL_GAIN":
		c.AccelGain, err = parsePositive(key, value)
	case "GRAVITY_CORRECTION":
		c.GravityCorrection, err = parseBool(key, value)
	case "YAW_CORRECTION":
		c.YawCorrection, err = parseBool(key, value)
	case "PREDICTION":
		c.Prediction, err = parseBool(key, value)
	case "PREDICTION_DT":
		c.PredictionDT, err = parsePositive(key, value)
	case "MAG_SWAP_YZ":
		c.MagSwapYZ, err = parseBool(key, value)
	case "CONVERT_HMD_TO_SENSOR":
		c.ConvertHMDToSensor, err = parseBool(key, value)

	// Calibration
	case "CALIBRATION_FILE":
		c.CalibrationFile = value
	case "CALIBRATION_NAME":
		c.CalibrationName = value

	// Heading reference
	case "HEADING_SERIAL_PORT":
		c.HeadingSerialPort = value
	case "HEADING_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HEADING_BAUD_RATE %q: %w", value, err)
		}
		c.HeadingBaudRate = rate

	// Timing
	case "PUBLISH_INTERVAL_MS":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PUBLISH_INTERVAL_MS %q: %w", value, err)
		}
		c.PublishIntervalMs = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func parsePositive(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, f)
	}
	return f, nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.DeviceTransport != TransportMock && c.DevicePath == "" {
		return fmt.Errorf("DEVICE_PATH is required for transport %s", c.DeviceTransport)
	}
	if c.DeviceTransport == TransportSerial && c.DeviceBaudRate == 0 {
		return fmt.Errorf("DEVICE_BAUD_RATE is required for transport serial")
	}
	if c.HeadingSerialPort != "" && c.HeadingBaudRate == 0 {
		return fmt.Errorf("HEADING_BAUD_RATE is required when HEADING_SERIAL_PORT is set")
	}
	if c.PublishIntervalMs <= 0 {
		return fmt.Errorf("PUBLISH_INTERVAL_MS must be positive")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
