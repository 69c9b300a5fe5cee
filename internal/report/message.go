// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package report decodes the tracker's input reports and builds the
// feature reports that configure it.
//
// Sensor report layout (little endian, 62 bytes):
//
//	0      message type (1 = sensors)
//	1      sample count
//	2..3   timestamp, 1 tick per ms
//	4..5   last command id echoed back
//	6..7   temperature, 0.01 °C
//	8..55  three 16-byte groups: 8 bytes accel then 8 bytes gyro,
//	       each a triple of 21-bit signed fields
//	56..61 magnetometer X, Y, Z as int16
package report

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MessageType is the first byte of every input report.
type MessageType uint8

const (
	MessageNone    MessageType = 0
	MessageSensors MessageType = 1
)

const (
	// HeaderSize is the shortest report Decode accepts.
	HeaderSize = 4
	// SensorsSize is the length of a sensor report.
	SensorsSize = 62

	samplesOffset = 8
	sampleStride  = 16
	magOffset     = 56
	maxSamples    = 3
)

// ErrSize matches every *SizeError.
var ErrSize = errors.New("report: buffer too short")

// SizeError reports an input report shorter than its type needs.
type SizeError struct {
	Type MessageType
	Need int
	Got  int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("report: type %d needs %d bytes, got %d", e.Type, e.Need, e.Got)
}

func (e *SizeError) Is(target error) bool { return target == ErrSize }

// Vec3i is a triple of raw sensor counts.
type Vec3i struct {
	X, Y, Z int32
}

// RawSample is one accelerometer and gyro reading in raw counts of
// 1e-4 m/s² and 1e-4 rad/s.
type RawSample struct {
	Accel Vec3i
	Gyro  Vec3i
}

// TrackerSensors is the decoded body of a sensor report.
type TrackerSensors struct {
	SampleCount   uint8
	Timestamp     uint16
	LastCommandID uint16
	Temperature   int16
	Samples       [maxSamples]RawSample
	MagX          int16
	MagY          int16
	MagZ          int16
}

// Iterations is how many entries of Samples carry data.
func (s TrackerSensors) Iterations() int {
	if s.SampleCount > maxSamples {
		return maxSamples
	}
	return int(s.SampleCount)
}

// Message is one decoded input report. Sensors is only meaningful when
// Type is MessageSensors.
type Message struct {
	Type    MessageType
	Sensors TrackerSensors
}

// Decode parses an input report. Report types other than sensors are
// returned with only Type set and no error.
func Decode(buf []byte) (Message, error) {
	if len(buf) < HeaderSize {
		t := MessageNone
		if len(buf) > 0 {
			t = MessageType(buf[0])
		}
		return Message{}, &SizeError{Type: t, Need: HeaderSize, Got: len(buf)}
	}

	msg := Message{Type: MessageType(buf[0])}
	if msg.Type != MessageSensors {
		return msg, nil
	}
	if len(buf) < SensorsSize {
		return Message{}, &SizeError{Type: msg.Type, Need: SensorsSize, Got: len(buf)}
	}

	s := &msg.Sensors
	s.SampleCount = buf[1]
	s.Timestamp = binary.LittleEndian.Uint16(buf[2:])
	s.LastCommandID = binary.LittleEndian.Uint16(buf[4:])
	s.Temperature = int16(binary.LittleEndian.Uint16(buf[6:]))

	for i := 0; i < s.Iterations(); i++ {
		off := samplesOffset + sampleStride*i
		s.Samples[i].Accel = unpackSensor(buf[off : off+8])
		s.Samples[i].Gyro = unpackSensor(buf[off+8 : off+16])
	}

	s.MagX = int16(binary.LittleEndian.Uint16(buf[magOffset:]))
	s.MagY = int16(binary.LittleEndian.Uint16(buf[magOffset+2:]))
	s.MagZ = int16(binary.LittleEndian.Uint16(buf[magOffset+4:]))
	return msg, nil
}

// MarshalBinary packs s back into a 62-byte sensor report. Samples past
// Iterations are left zero.
func (s TrackerSensors) MarshalBinary() ([]byte, error) {
	buf := make([]byte, SensorsSize)
	buf[0] = byte(MessageSensors)
	buf[1] = s.SampleCount
	binary.LittleEndian.PutUint16(buf[2:], s.Timestamp)
	binary.LittleEndian.PutUint16(buf[4:], s.LastCommandID)
	binary.LittleEndian.PutUint16(buf[6:], uint16(s.Temperature))
	for i := 0; i < s.Iterations(); i++ {
		off := samplesOffset + sampleStride*i
		packSensor(buf[off:off+8], s.Samples[i].Accel)
		packSensor(buf[off+8:off+16], s.Samples[i].Gyro)
	}
	binary.LittleEndian.PutUint16(buf[magOffset:], uint16(s.MagX))
	binary.LittleEndian.PutUint16(buf[magOffset+2:], uint16(s.MagY))
	binary.LittleEndian.PutUint16(buf[magOffset+4:], uint16(s.MagZ))
	return buf, nil
}
