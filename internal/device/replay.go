// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package device

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/relabs-tech/head_tracker/internal/fusion"
	"github.com/relabs-tech/head_tracker/internal/report"
)

// A recording is a sequence of input reports, each prefixed with its
// length as a little-endian uint16.

// WriteRecord appends one report to a recording.
func WriteRecord(w io.Writer, rep []byte) error {
	var hdr [2]byte
	binary.LittleEndian.PutUint16(hdr[:], uint16(len(rep)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(rep)
	return err
}

// ReadRecord reads the next report of a recording into buf. It returns
// io.EOF at a clean end and io.ErrUnexpectedEOF for a truncated record.
func ReadRecord(r io.Reader, buf []byte) (int, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, err
	}
	n := int(binary.LittleEndian.Uint16(hdr[:]))
	if n > len(buf) {
		return 0, fmt.Errorf("device: record of %d bytes exceeds buffer of %d", n, len(buf))
	}
	if _, err := io.ReadFull(r, buf[:n]); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	return n, nil
}

type replayDevice struct {
	r      *bufio.Reader
	c      io.Closer
	name   string
	paced  bool
	sleep  func(time.Duration)
	lastTS uint16
	haveTS bool
}

// OpenReplay plays back a recording. When paced, reports are released
// at the rate their timestamps say they were produced.
func OpenReplay(path string, paced bool) (Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("device: open replay: %w", err)
	}
	return newReplay(f, path, paced), nil
}

func newReplay(rc io.ReadCloser, name string, paced bool) *replayDevice {
	return &replayDevice{
		r:     bufio.NewReader(rc),
		c:     rc,
		name:  name,
		paced: paced,
		sleep: time.Sleep,
	}
}

func (d *replayDevice) ReadReport(buf []byte) (int, error) {
	n, err := ReadRecord(d.r, buf)
	if err != nil {
		return 0, err
	}
	if d.paced {
		d.pace(buf[:n])
	}
	return n, nil
}

func (d *replayDevice) pace(rep []byte) {
	msg, err := report.Decode(rep)
	if err != nil || msg.Type != report.MessageSensors {
		return
	}
	ts := msg.Sensors.Timestamp
	if d.haveTS {
		ticks := ts - d.lastTS
		if ticks > 0 && ticks <= report.MaxGapTicks {
			d.sleep(time.Duration(ticks) * time.Millisecond)
		}
	}
	d.lastTS, d.haveTS = ts, true
}

// Feature reports go nowhere during replay.
func (d *replayDevice) SetFeature(buf []byte) error { return nil }

func (d *replayDevice) GetFeature(buf []byte) (int, error) { return 0, ErrUnsupported }

func (d *replayDevice) Info() fusion.SensorInfo {
	return fusion.SensorInfo{Product: "replay " + d.name}
}

func (d *replayDevice) Close() error { return d.c.Close() }

// RecordingDevice copies every input report it reads into a recording.
type RecordingDevice struct {
	Device
	mu sync.Mutex
	w  io.WriteCloser
}

func NewRecordingDevice(d Device, w io.WriteCloser) *RecordingDevice {
	return &RecordingDevice{Device: d, w: w}
}

func (d *RecordingDevice) ReadReport(buf []byte) (int, error) {
	n, err := d.Device.ReadReport(buf)
	if err != nil {
		return n, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := WriteRecord(d.w, buf[:n]); err != nil {
		return n, fmt.Errorf("device: record: %w", err)
	}
	return n, nil
}

func (d *RecordingDevice) Close() error {
	err := d.Device.Close()
	d.mu.Lock()
	defer d.mu.Unlock()
	if cerr := d.w.Close(); err == nil {
		err = cerr
	}
	return err
}
