// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration persists named magnetometer calibrations per
// device serial number in a device profile file.
package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/head_tracker/internal/geom"
)

const (
	// ProfileVersion is written into new profile files.
	ProfileVersion = "1.0"
	// RecordVersion is the calibration representation written by Save.
	RecordVersion = "2.0"
	// DefaultName is used when a calibration is saved or loaded without a
	// name.
	DefaultName = "default"
	// TimeLayout is how calibration timestamps are stored, in local time.
	TimeLayout = "2006-01-02 15:04:05"

	maxProfileMajor = 1
	maxRecordMajor  = 2
)

var (
	ErrNotFound           = errors.New("calibration: not found")
	ErrUnsupportedVersion = errors.New("calibration: unsupported profile version")
)

// Device identifies the tracker a calibration belongs to.
type Device struct {
	Product   string
	ProductID uint16
	Serial    string
}

// Record is one named magnetometer calibration.
type Record struct {
	Name   string
	Time   time.Time
	Matrix geom.Matrix4
	// YawCorrection is stored per device, not per calibration. Save
	// overwrites the device flag, Load reports it.
	YawCorrection bool
}

type profileFile struct {
	Version string          `json:"Oculus Device Profile Version" yaml:"Oculus Device Profile Version"`
	Devices []deviceProfile `json:"Devices" yaml:"Devices"`
}

type deviceProfile struct {
	Product             string           `json:"Product" yaml:"Product"`
	ProductID           uint16           `json:"ProductID" yaml:"ProductID"`
	Serial              string           `json:"Serial" yaml:"Serial"`
	EnableYawCorrection bool             `json:"EnableYawCorrection" yaml:"EnableYawCorrection"`
	MagCalibrations     []magCalibration `json:"MagCalibration" yaml:"MagCalibration"`
}

type magCalibration struct {
	Version           string `json:"Version" yaml:"Version"`
	Name              string `json:"Name" yaml:"Name"`
	Time              string `json:"Time,omitempty" yaml:"Time,omitempty"`
	CalibrationMatrix string `json:"CalibrationMatrix,omitempty" yaml:"CalibrationMatrix,omitempty"`
	// Calibration holds only the hard-iron offset, as an identity matrix
	// with a translation column, for readers that predate the full matrix.
	Calibration string `json:"Calibration,omitempty" yaml:"Calibration,omitempty"`
}

// FileStore keeps device profiles in a single JSON file, or YAML when the
// path ends in .yaml or .yml.
type FileStore struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewFileStore does not touch the file until the first Save or Load.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the profile file location.
func (s *FileStore) Path() string { return s.path }

// Save stores rec for dev, replacing any calibration with the same name
// for that device, and updates the device's yaw correction flag.
func (s *FileStore) Save(dev Device, rec Record) error {
	if dev.Serial == "" {
		return errors.New("calibration: device has no serial number")
	}
	if rec.Name == "" {
		rec.Name = DefaultName
	}
	if rec.Time.IsZero() {
		rec.Time = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		pf = &profileFile{Version: ProfileVersion}
	case err != nil:
		return err
	}

	entry := magCalibration{
		Version:           RecordVersion,
		Name:              rec.Name,
		Time:              rec.Time.In(time.Local).Format(TimeLayout),
		CalibrationMatrix: rec.Matrix.String(),
		Calibration:       legacyOffset(rec.Matrix).String(),
	}

	idx := pf.device(dev.Serial)
	if idx < 0 {
		pf.Devices = append(pf.Devices, deviceProfile{
			Product:   dev.Product,
			ProductID: dev.ProductID,
			Serial:    dev.Serial,
		})
		idx = len(pf.Devices) - 1
	}
	d := &pf.Devices[idx]
	d.EnableYawCorrection = rec.YawCorrection
	kept := d.MagCalibrations[:0]
	for _, c := range d.MagCalibrations {
		if c.Name != rec.Name {
			kept = append(kept, c)
		}
	}
	d.MagCalibrations = append(kept, entry)

	return s.write(pf)
}

// Load returns the named calibration for serial. When several entries
// share the name the one with the highest supported version wins.
func (s *FileStore) Load(serial, name string) (Record, error) {
	if name == "" {
		name = DefaultName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.read()
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	idx := pf.device(serial)
	if idx < 0 {
		return Record{}, ErrNotFound
	}
	d := pf.Devices[idx]

	var (
		best      Record
		bestMajor int
	)
	for _, c := range d.MagCalibrations {
		if c.Name != name {
			continue
		}
		major := majorVersion(c.Version)
		if major <= bestMajor || major > maxRecordMajor {
			continue
		}
		text := c.CalibrationMatrix
		if text == "" {
			text = c.Calibration
		}
		if text == "" {
			continue
		}
		m, err := geom.ParseMatrix4(text)
		if err != nil {
			return Record{}, fmt.Errorf("calibration: %s/%s: %w", serial, name, err)
		}
		best = Record{
			Name:          c.Name,
			Time:          s.parseTime(c.Time),
			Matrix:        m,
			YawCorrection: d.EnableYawCorrection,
		}
		bestMajor = major
	}
	if bestMajor == 0 {
		return Record{}, ErrNotFound
	}
	return best, nil
}

// Names lists the calibrations stored for serial in file order.
func (s *FileStore) Names(serial string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pf, err := s.read()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	idx := pf.device(serial)
	if idx < 0 {
		return nil, nil
	}
	var names []string
	for _, c := range pf.Devices[idx].MagCalibrations {
		names = append(names, c.Name)
	}
	return names, nil
}

func (pf *profileFile) device(serial string) int {
	for i := range pf.Devices {
		if pf.Devices[i].Serial == serial {
			return i
		}
	}
	return -1
}

func (s *FileStore) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(s.path))
	return ext == ".yaml" || ext == ".yml"
}

func (s *FileStore) read() (*profileFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var pf profileFile
	if s.isYAML() {
		err = yaml.Unmarshal(data, &pf)
	} else {
		err = json.Unmarshal(data, &pf)
	}
	if err != nil {
		return nil, fmt.Errorf("calibration: parse %s: %w", s.path, err)
	}
	if pf.Version == "" {
		return nil, fmt.Errorf("calibration: %s is not a device profile file", s.path)
	}
	if majorVersion(pf.Version) > maxProfileMajor {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedVersion, pf.Version)
	}
	return &pf, nil
}

func (s *FileStore) write(pf *profileFile) error {
	var (
		data []byte
		err  error
	)
	if s.isYAML() {
		data, err = yaml.Marshal(pf)
	} else {
		data, err = json.MarshalIndent(pf, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("calibration: encode: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("calibration: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("calibration: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("calibration: replace %s: %w", s.path, err)
	}
	return nil
}

// parseTime falls back to the current time for missing or malformed
// timestamps.
func (s *FileStore) parseTime(v string) time.Time {
	if v == "" {
		return s.now()
	}
	t, err := time.ParseInLocation(TimeLayout, v, time.Local)
	if err != nil {
		log.Printf("calibration: bad timestamp %q: %v", v, err)
		return s.now()
	}
	return t
}

func majorVersion(v string) int {
	head, _, _ := strings.Cut(strings.TrimSpace(v), ".")
	n, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}
	return n
}

// legacyOffset expresses the hard-iron offset of m in raw sensor units:
// the translation column mapped back through the inverse of the 3x3
// soft-iron block. A singular block yields the identity; an
// ill-conditioned one still gets its offset.
func legacyOffset(m geom.Matrix4) geom.Matrix4 {
	block := mat.NewDense(3, 3, []float64{
		m.At(0, 0), m.At(0, 1), m.At(0, 2),
		m.At(1, 0), m.At(1, 1), m.At(1, 2),
		m.At(2, 0), m.At(2, 1), m.At(2, 2),
	})
	var inv mat.Dense
	if err := inv.Inverse(block); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			log.Printf("calibration: soft-iron block singular, legacy offset omitted: %v", err)
			return geom.Identity4()
		}
		log.Printf("calibration: soft-iron block ill-conditioned (%.3g), legacy offset kept", float64(cond))
	}

	t := m.Translation()
	var center mat.VecDense
	center.MulVec(&inv, mat.NewVecDense(3, []float64{t.X, t.Y, t.Z}))

	return geom.Identity4().
		With(0, 3, center.AtVec(0)).
		With(1, 3, center.AtVec(1)).
		With(2, 3, center.AtVec(2))
}
