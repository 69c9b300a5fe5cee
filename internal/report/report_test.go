// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package report

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/head_tracker/internal/geom"
)

func sensorsWithTimestamp(count uint8, ts uint16) TrackerSensors {
	s := TrackerSensors{SampleCount: count, Timestamp: ts}
	for i := 0; i < s.Iterations(); i++ {
		s.Samples[i].Accel = Vec3i{X: int32(i + 1), Y: 98100, Z: 0}
	}
	return s
}

func TestDecodeZeroPayload(t *testing.T) {
	buf := make([]byte, SensorsSize)
	buf[0] = byte(MessageSensors)
	buf[1] = 1

	msg, err := Decode(buf)
	require.NoError(t, err)
	require.Equal(t, MessageSensors, msg.Type)

	samples := NewConverter(DefaultConverterOptions).Convert(msg.Sensors)
	require.Len(t, samples, 1)
	s := samples[0]
	assert.Equal(t, geom.Vector3{}, s.Acceleration)
	assert.Equal(t, geom.Vector3{}, s.RotationRate)
	assert.Equal(t, geom.Vector3{}, s.MagneticField)
	assert.Zero(t, s.Temperature)
	assert.InDelta(t, TimeUnit, s.TimeDelta, 1e-12)
}

func TestDecodeSizeErrors(t *testing.T) {
	_, err := Decode([]byte{1, 0})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSize))

	_, err = Decode(make([]byte, SensorsSize-1))
	require.NoError(t, err, "type 0 is ignored, no length requirement beyond the header")

	short := make([]byte, SensorsSize-1)
	short[0] = byte(MessageSensors)
	_, err = Decode(short)
	var se *SizeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, SensorsSize, se.Need)
	assert.Equal(t, SensorsSize-1, se.Got)
}

func TestDecodeIgnoresOtherTypes(t *testing.T) {
	msg, err := Decode([]byte{9, 1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, MessageType(9), msg.Type)
	assert.Equal(t, TrackerSensors{}, msg.Sensors)
}

func TestSignExtend(t *testing.T) {
	assert.Equal(t, int32(-1), SignExtend(0x1FFFFF, 21))
	assert.Equal(t, int32(-1048576), SignExtend(0x100000, 21))
	assert.Equal(t, int32(0x0FFFFF), SignExtend(0x0FFFFF, 21))
	assert.Equal(t, int32(0), SignExtend(0, 21))
}

func TestUnpackFieldBoundaries(t *testing.T) {
	// X all ones, Y zero, Z most negative.
	d := []byte{0xFF, 0xFF, 0xF8, 0x00, 0x00, 0x20, 0x00, 0x00}
	assert.Equal(t, Vec3i{X: -1, Y: 0, Z: -1048576}, unpackSensor(d))

	// Y = 0x0FFFFF spans bytes 2 to 5.
	d = []byte{0x00, 0x00, 0x03, 0xFF, 0xFF, 0xC0, 0x00, 0x00}
	assert.Equal(t, Vec3i{X: 0, Y: 0x0FFFFF, Z: 0}, unpackSensor(d))
}

func TestMarshalRoundTrip(t *testing.T) {
	want := TrackerSensors{
		SampleCount:   3,
		Timestamp:     0xFFFE,
		LastCommandID: 77,
		Temperature:   -2150,
		MagX:          -300,
		MagY:          1200,
		MagZ:          32000,
	}
	want.Samples[0] = RawSample{Accel: Vec3i{1, -1, 1048575}, Gyro: Vec3i{-1048576, 5, -5}}
	want.Samples[1] = RawSample{Accel: Vec3i{98100, 0, -98100}, Gyro: Vec3i{12, 34, 56}}
	want.Samples[2] = RawSample{Accel: Vec3i{-7, 7, 0}, Gyro: Vec3i{0, 0, -1}}

	buf, err := want.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, SensorsSize)

	msg, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, want, msg.Sensors)
}

func TestConvertScalingAndAxes(t *testing.T) {
	s := TrackerSensors{SampleCount: 1, Temperature: 2512, MagX: 1000, MagY: 2000, MagZ: 3000}
	s.Samples[0] = RawSample{Accel: Vec3i{10000, 20000, 30000}, Gyro: Vec3i{-10000, 0, 5000}}

	out := NewConverter(ConverterOptions{SwapMagYZ: true}).Convert(s)
	require.Len(t, out, 1)
	assert.True(t, geom.Vec3(1, 2, 3).Compare(out[0].Acceleration, 1e-12))
	assert.True(t, geom.Vec3(-1, 0, 0.5).Compare(out[0].RotationRate, 1e-12))
	assert.True(t, geom.Vec3(0.1, 0.3, 0.2).Compare(out[0].MagneticField, 1e-12))
	assert.InDelta(t, 25.12, out[0].Temperature, 1e-9)

	out = NewConverter(ConverterOptions{SwapMagYZ: true, ConvertHMDToSensor: true}).Convert(s)
	assert.True(t, geom.Vec3(1, 3, -2).Compare(out[0].Acceleration, 1e-12))
	assert.True(t, geom.Vec3(0.1, 0.2, -0.3).Compare(out[0].MagneticField, 1e-12))
}

func TestConvertTimeDeltas(t *testing.T) {
	c := NewConverter(DefaultConverterOptions)

	out := c.Convert(sensorsWithTimestamp(3, 100))
	require.Len(t, out, 3)
	for _, s := range out {
		assert.InDelta(t, TimeUnit, s.TimeDelta, 1e-12)
	}

	// Five samples folded into one report: the first absorbs the extra time.
	out = c.Convert(sensorsWithTimestamp(5, 103))
	require.Len(t, out, 3)
	assert.InDelta(t, 3*TimeUnit, out[0].TimeDelta, 1e-12)
	assert.InDelta(t, TimeUnit, out[1].TimeDelta, 1e-12)
}

func TestConvertGapFill(t *testing.T) {
	c := NewConverter(DefaultConverterOptions)
	first := c.Convert(sensorsWithTimestamp(2, 10))
	require.Len(t, first, 2)

	// 6 ticks elapsed, 2 accounted for by the previous report.
	out := c.Convert(sensorsWithTimestamp(1, 16))
	require.Len(t, out, 2)
	assert.InDelta(t, 4*TimeUnit, out[0].TimeDelta, 1e-12)
	assert.Equal(t, first[1].Acceleration, out[0].Acceleration, "gap is filled with the previous reading")
	assert.InDelta(t, TimeUnit, out[1].TimeDelta, 1e-12)

	// No gap: timestamp advanced by exactly the previous count.
	out = c.Convert(sensorsWithTimestamp(1, 17))
	assert.Len(t, out, 1)
}

func TestConvertTimestampWraparound(t *testing.T) {
	c := NewConverter(DefaultConverterOptions)
	c.Convert(sensorsWithTimestamp(1, 0xFFFE))

	out := c.Convert(sensorsWithTimestamp(1, 0x0002))
	require.Len(t, out, 2)
	assert.InDelta(t, 3*TimeUnit, out[0].TimeDelta, 1e-12)
}

func TestConvertLargeGapResets(t *testing.T) {
	c := NewConverter(DefaultConverterOptions)
	c.Convert(sensorsWithTimestamp(1, 1000))

	out := c.Convert(sensorsWithTimestamp(1, 1000+255))
	require.Len(t, out, 1, "sequence restarts without a replicated sample")

	out = c.Convert(sensorsWithTimestamp(1, 1000+257))
	require.Len(t, out, 2, "gap tracking resumes from the restarted sequence")
	assert.InDelta(t, TimeUnit, out[0].TimeDelta, 1e-12)

	c.Reset()
	out = c.Convert(sensorsWithTimestamp(1, 9))
	assert.Len(t, out, 1)
}

func TestRangeReport(t *testing.T) {
	var logged []string
	Logf = func(format string, args ...any) { logged = append(logged, format) }
	t.Cleanup(func() { Logf = defaultLogf })

	rr := NewRangeReport(SensorRange{
		MaxAcceleration:  4 * Gravity,
		MaxRotationRate:  300 * math.Pi / 180,
		MaxMagneticField: 0.88,
	}, 0x0102)
	assert.Equal(t, uint8(4), rr.AccelScale, "exact step is kept")
	assert.Equal(t, uint16(500), rr.GyroScale, "rounded up")
	assert.Equal(t, uint16(880), rr.MagScale)
	assert.Empty(t, rr.Clamped)
	assert.Empty(t, logged)

	assert.Equal(t, []byte{4, 0x02, 0x01, 4, 0xF4, 0x01, 0x70, 0x03}, rr.Pack())

	rr = NewRangeReport(SensorRange{MaxAcceleration: 20 * Gravity, MaxRotationRate: 1, MaxMagneticField: 3}, 1)
	assert.Equal(t, uint8(16), rr.AccelScale)
	assert.Equal(t, uint16(2500), rr.MagScale)
	assert.Equal(t, []string{"acceleration", "magnetic field"}, rr.Clamped)
	assert.Len(t, logged, 2)

	back, err := UnpackRange(rr.Pack())
	require.NoError(t, err)
	rr.Clamped = nil
	assert.Equal(t, rr, back)
	assert.InDelta(t, 16*Gravity, back.SensorRange().MaxAcceleration, 1e-9)

	maxRange := MaxSensorRange()
	rr = NewRangeReport(maxRange, 2)
	assert.Empty(t, rr.Clamped)
	assert.InDelta(t, maxRange.MaxRotationRate, rr.SensorRange().MaxRotationRate, 1e-9)
}

func TestConfigAndKeepAlivePackets(t *testing.T) {
	cfg := SensorConfig{
		CommandID:         0x0A0B,
		Flags:             FlagUseCalibration | FlagAutoCalibration | FlagMotionKeepAlive,
		PacketInterval:    0,
		KeepAliveInterval: 10000,
	}
	buf := cfg.Pack()
	assert.Equal(t, []byte{2, 0x0B, 0x0A, 0x1C, 0, 0x10, 0x27}, buf)
	back, err := UnpackConfig(buf)
	require.NoError(t, err)
	assert.Equal(t, cfg, back)

	assert.False(t, cfg.IsUsingSensorCoordinates())
	cfg.SetSensorCoordinates(true)
	assert.True(t, cfg.IsUsingSensorCoordinates())
	assert.Equal(t, byte(0x5C), cfg.Pack()[3])
	cfg.SetSensorCoordinates(true)
	assert.Equal(t, FlagUseCalibration|FlagAutoCalibration|FlagMotionKeepAlive|FlagSensorCoordinates, cfg.Flags)
	cfg.SetSensorCoordinates(false)
	assert.False(t, cfg.IsUsingSensorCoordinates())
	assert.Equal(t, FlagUseCalibration|FlagAutoCalibration|FlagMotionKeepAlive, cfg.Flags)

	ka := KeepAlive{CommandID: 3, Interval: 10000}
	buf = ka.Pack()
	assert.Equal(t, []byte{8, 3, 0, 0x10, 0x27}, buf)
	kb, err := UnpackKeepAlive(buf)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)

	_, err = UnpackKeepAlive(buf[:4])
	assert.ErrorIs(t, err, ErrSize)
}
