// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/head_tracker/internal/geom"
)

// QuatMessage is published on the quaternion topic.
type QuatMessage struct {
	Orientation geom.Quaternion `json:"orientation"`
	Predicted   geom.Quaternion `json:"predicted"`
	Stage       uint64          `json:"stage"`
}

// Calibration command actions.
const (
	CalibrationSet   = "set"   // install Matrix, save it when Name is given
	CalibrationClear = "clear" // drop the calibration and all yaw references
	CalibrationSave  = "save"  // store the current calibration as Name
	CalibrationLoad  = "load"  // install the stored calibration Name
	CalibrationReset = "reset" // restart the orientation estimate
)

// CalibrationCommand is received on the calibration-set topic.
type CalibrationCommand struct {
	Action string `json:"action"`
	// Matrix is 16 space-separated row-major coefficients.
	Matrix        string `json:"matrix,omitempty"`
	Name          string `json:"name,omitempty"`
	YawCorrection *bool  `json:"yaw_correction,omitempty"`
}

func publishJSON(client mqtt.Client, topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("json marshal error (%s): %w", topic, err)
	}
	if token := client.Publish(topic, 0, retained, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT publish error (%s): %w", topic, token.Error())
	}
	return nil
}

func subscribeJSON[T any](client mqtt.Client, topic string, fn func(T)) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var v T
		if err := json.Unmarshal(msg.Payload(), &v); err != nil {
			log.Printf("%s unmarshal error: %v", topic, err)
			return
		}
		fn(v)
	})
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("MQTT subscribe %s: %w", topic, token.Error())
	}
	log.Printf("subscribed to MQTT topic %s", topic)
	return nil
}

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect error: %w", token.Error())
	}
	log.Printf("connected to MQTT broker at %s", broker)
	return client, nil
}
