// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package device

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/head_tracker/internal/fusion"
)

// Frames on the serial bridge:
//
//	0x7E kind len payload[len] xor
//
// where xor covers kind, len and the payload.
const (
	frameStart = 0x7E

	kindInput      = 'I' // device -> host input report
	kindSetFeature = 'S' // host -> device
	kindGetFeature = 'G' // host -> device, payload is the report id
	kindFeature    = 'F' // device -> host reply to 'G'
)

const featureTimeout = time.Second

func encodeFrame(kind byte, payload []byte) []byte {
	f := make([]byte, 0, len(payload)+4)
	f = append(f, frameStart, kind, byte(len(payload)))
	f = append(f, payload...)
	sum := kind ^ byte(len(payload))
	for _, b := range payload {
		sum ^= b
	}
	return append(f, sum)
}

type frameReader struct {
	r *bufio.Reader
}

// next returns the next well-formed frame. Bytes before a start marker
// and frames with a bad checksum are skipped.
func (fr *frameReader) next() (kind byte, payload []byte, err error) {
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		if b != frameStart {
			continue
		}
		var hdr [2]byte
		if _, err := io.ReadFull(fr.r, hdr[:]); err != nil {
			return 0, nil, err
		}
		body := make([]byte, int(hdr[1])+1)
		if _, err := io.ReadFull(fr.r, body); err != nil {
			return 0, nil, err
		}
		sum := hdr[0] ^ hdr[1]
		for _, b := range body[:len(body)-1] {
			sum ^= b
		}
		if sum != body[len(body)-1] {
			continue
		}
		return hdr[0], body[:len(body)-1], nil
	}
}

type serialDevice struct {
	port io.ReadWriteCloser
	name string

	writeMu  sync.Mutex
	inputs   chan []byte
	features chan []byte
	done     chan struct{}
	readErr  error
	once     sync.Once
}

// OpenSerial opens a tracker behind a USB serial bridge that carries
// HID reports in frames.
func OpenSerial(portName string, baud int) (Device, error) {
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
		return nil, fmt.Errorf("device: open serial %s: %w", portName, err)
	}
	log.Printf("device: serial port opened on %s at %d baud", portName, baud)
	return newSerialDevice(port, portName), nil
}

func newSerialDevice(port io.ReadWriteCloser, name string) *serialDevice {
	d := &serialDevice{
		port:     port,
		name:     name,
		inputs:   make(chan []byte, 64),
		features: make(chan []byte, 1),
		done:     make(chan struct{}),
	}
	go d.readLoop()
	return d
}

func (d *serialDevice) readLoop() {
	defer close(d.done)
	fr := &frameReader{r: bufio.NewReader(d.port)}
	for {
		kind, payload, err := fr.next()
		if err != nil {
			d.readErr = err
			return
		}
		switch kind {
		case kindInput:
			select {
			case d.inputs <- payload:
			default:
				log.Printf("device: %s input queue full, dropping report", d.name)
			}
		case kindFeature:
			select {
			case d.features <- payload:
			default:
			}
		}
	}
}

func (d *serialDevice) ReadReport(buf []byte) (int, error) {
	select {
	case p := <-d.inputs:
		return copy(buf, p), nil
	case <-d.done:
		if d.readErr == io.EOF {
			return 0, io.EOF
		}
		return 0, fmt.Errorf("device: read %s: %w", d.name, d.readErr)
	}
}

func (d *serialDevice) write(kind byte, payload []byte) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if _, err := d.port.Write(encodeFrame(kind, payload)); err != nil {
		return fmt.Errorf("device: write %s: %w", d.name, err)
	}
	return nil
}

func (d *serialDevice) SetFeature(buf []byte) error {
	if len(buf) == 0 {
		return fmt.Errorf("device: empty feature report")
	}
	return d.write(kindSetFeature, buf)
}

func (d *serialDevice) GetFeature(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, fmt.Errorf("device: empty feature buffer")
	}
	id := buf[0]
	if err := d.write(kindGetFeature, []byte{id}); err != nil {
		return 0, err
	}
	timeout := time.NewTimer(featureTimeout)
	defer timeout.Stop()
	for {
		select {
		case p := <-d.features:
			if len(p) == 0 || p[0] != id {
				continue
			}
			return copy(buf, p), nil
		case <-d.done:
			return 0, ErrClosed
		case <-timeout.C:
			return 0, fmt.Errorf("device: get feature %d on %s: timed out", id, d.name)
		}
	}
}

func (d *serialDevice) Info() fusion.SensorInfo {
	return fusion.SensorInfo{Product: "serial tracker " + d.name}
}

func (d *serialDevice) Close() error {
	var err error
	d.once.Do(func() { err = d.port.Close() })
	return err
}
