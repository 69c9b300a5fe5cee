// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tracker_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
# broker
MQTT_BROKER=tcp://localhost:1883
DEVICE_TRANSPORT=serial
DEVICE_PATH=/dev/ttyACM0
DEVICE_BAUD_RATE=115200
YAW_CORRECTION=true
ACCEL_GAIN=0.1
RECORD_FILE=/tmp/session.bin
TOPIC_POSE = rig/pose
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, TransportSerial, cfg.DeviceTransport)
	assert.Equal(t, 115200, cfg.DeviceBaudRate)
	assert.True(t, cfg.YawCorrection)
	assert.Equal(t, 0.1, cfg.AccelGain)
	assert.Equal(t, "/tmp/session.bin", cfg.RecordFile)
	assert.Equal(t, "rig/pose", cfg.TopicPose)

	// untouched keys keep their defaults
	assert.True(t, cfg.GravityCorrection)
	assert.True(t, cfg.MagSwapYZ)
	assert.Equal(t, 0.03, cfg.PredictionDT)
	assert.Equal(t, "tracker/quat", cfg.TopicQuat)
}

func TestLoadErrors(t *testing.T) {
	cases := map[string]string{
		"missing broker":     "DEVICE_TRANSPORT=mock\n",
		"unknown key":        "MQTT_BROKER=x\nDEVICE_TRANSPORT=mock\nNOPE=1\n",
		"bad line":           "MQTT_BROKER\n",
		"bad transport":      "MQTT_BROKER=x\nDEVICE_TRANSPORT=usb\n",
		"missing path":       "MQTT_BROKER=x\nDEVICE_TRANSPORT=hidraw\n",
		"serial needs baud":  "MQTT_BROKER=x\nDEVICE_TRANSPORT=serial\nDEVICE_PATH=/dev/ttyUSB0\n",
		"bad bool":           "MQTT_BROKER=x\nDEVICE_TRANSPORT=mock\nYAW_CORRECTION=maybe\n",
		"negative gain":      "MQTT_BROKER=x\nDEVICE_TRANSPORT=mock\nACCEL_GAIN=-1\n",
		"keep alive range":   "MQTT_BROKER=x\nDEVICE_TRANSPORT=mock\nKEEP_ALIVE_INTERVAL_MS=70000\n",
		"heading needs baud": "MQTT_BROKER=x\nDEVICE_TRANSPORT=mock\nHEADING_SERIAL_PORT=/dev/ttyUSB1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
