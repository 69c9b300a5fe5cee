// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package heading reads an external compass over NMEA 0183 and measures
// how far the fused yaw drifts away from it.
package heading

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"math"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"
)

// Reading is one true heading from the reference compass, in degrees
// clockwise from north.
type Reading struct {
	Heading float64   `json:"heading"`
	Source  string    `json:"source"` // sentence type, HDT or HDG
	Time    time.Time `json:"time"`
}

// ParseLine parses one NMEA sentence. ok is false for well-formed
// sentences that carry no heading.
func ParseLine(line string) (r Reading, ok bool, err error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Reading{}, false, nil
	}
	sentence, err := nmea.Parse(line)
	if err != nil {
		return Reading{}, false, fmt.Errorf("heading: %w", err)
	}

	switch sentence.DataType() {
	case nmea.TypeHDT:
		m := sentence.(nmea.HDT)
		return Reading{Heading: Wrap360(m.Heading), Source: nmea.TypeHDT}, true, nil

	case nmea.TypeHDG:
		// magnetic sensor heading, corrected by deviation then variation
		m := sentence.(nmea.HDG)
		h := m.Heading + signed(m.Deviation, m.DeviationDirection) + signed(m.Variation, m.VariationDirection)
		return Reading{Heading: Wrap360(h), Source: nmea.TypeHDG}, true, nil

	default:
		return Reading{}, false, nil
	}
}

func signed(v float64, dir string) float64 {
	if dir == nmea.West {
		return -v
	}
	return v
}

// Wrap360 maps degrees into [0, 360).
func Wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Wrap180 maps degrees into [-180, 180).
func Wrap180(deg float64) float64 {
	return Wrap360(deg+180) - 180
}

// FromYaw converts a fused yaw, counter-clockwise around up in degrees,
// into a compass heading.
func FromYaw(yawDeg float64) float64 {
	return Wrap360(-yawDeg)
}

// Drift compares the fused heading with the reference.
type Drift struct {
	Reference float64   `json:"reference"`
	Fused     float64   `json:"fused"`
	Offset    float64   `json:"offset"`
	Drift     float64   `json:"drift"`
	MaxDrift  float64   `json:"max_drift"`
	Source    string    `json:"source"`
	Time      time.Time `json:"time"`
}

// DriftTracker aligns the fused heading to the reference on the first
// reading, since the tracker's yaw zero is arbitrary, and reports every
// later disagreement relative to that alignment.
type DriftTracker struct {
	mu       sync.Mutex
	aligned  bool
	offset   float64
	maxDrift float64
	last     Drift
}

func (t *DriftTracker) Update(ref Reading, fusedYawDeg float64) Drift {
	t.mu.Lock()
	defer t.mu.Unlock()

	fused := FromYaw(fusedYawDeg)
	if !t.aligned {
		t.offset = Wrap180(ref.Heading - fused)
		t.aligned = true
	}
	d := Wrap180(ref.Heading - fused - t.offset)
	if math.Abs(d) > math.Abs(t.maxDrift) {
		t.maxDrift = d
	}
	t.last = Drift{
		Reference: ref.Heading,
		Fused:     fused,
		Offset:    t.offset,
		Drift:     d,
		MaxDrift:  t.maxDrift,
		Source:    ref.Source,
		Time:      ref.Time,
	}
	return t.last
}

// Realign drops the alignment; the next Update sets a new one.
func (t *DriftTracker) Realign() {
	t.mu.Lock()
	t.aligned = false
	t.maxDrift = 0
	t.mu.Unlock()
}

// Last is the most recent result, zero before the first Update.
func (t *DriftTracker) Last() Drift {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Monitor reads NMEA lines from r and calls fn with every heading it
// finds until r fails. Unparsable lines are skipped; compasses emit
// partial sentences when a read starts mid-line.
func Monitor(r io.Reader, fn func(Reading)) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if rd, ok, perr := ParseLine(line); perr == nil && ok {
				rd.Time = time.Now()
				fn(rd)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("heading: read: %w", err)
		}
	}
}

// OpenSerial opens the compass serial port.
func OpenSerial(portName string, baud int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("heading: open %s: %w", portName, err)
	}
	log.Printf("heading: serial port opened on %s at %d baud", portName, baud)
	return port, nil
}
