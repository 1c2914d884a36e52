// Package prefs persists the routing preferences that should survive a
// restart: the last selected device and the device filter mode.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/companyzero/audioroute/route"
	"github.com/decred/slog"
)

// ErrNotFound is returned by Load when no preferences were saved yet.
var ErrNotFound = errors.New("prefs file not found")

// Prefs is the persisted preference set.
type Prefs struct {
	LastDeviceID   string           `json:"lastDeviceId,omitempty"`
	LastDeviceType route.DeviceType `json:"lastDeviceType,omitempty"`
	Filter         route.FilterMode `json:"filter"`
}

// Store reads and writes a Prefs file. Writes go through a temp file that is
// fsynced and renamed over the final name, so a crash mid-write never leaves
// a corrupt file behind.
type Store struct {
	fname string
	log   slog.Logger

	mtx sync.Mutex
}

// NewStore creates a store backed by fname. A nil log disables logging.
func NewStore(fname string, log slog.Logger) *Store {
	if log == nil {
		log = slog.Disabled
	}
	return &Store{fname: fname, log: log}
}

// Load reads the saved preferences. Returns ErrNotFound when the file does
// not exist.
func (s *Store) Load() (Prefs, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var p Prefs
	f, err := os.Open(s.fname)
	if os.IsNotExist(err) {
		return p, ErrNotFound
	} else if err != nil {
		return p, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(&p); err != nil {
		return Prefs{}, fmt.Errorf("unable to decode prefs: %w", err)
	}
	return p, nil
}

// Save writes the preferences.
func (s *Store) Save(p Prefs) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	dir := filepath.Dir(s.fname)
	base := filepath.Base(s.fname)
	tempFname := filepath.Join(dir, "."+base+".new")

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("unable to create dest dir: %w", err)
	}

	f, err := os.Create(tempFname)
	if err != nil {
		return fmt.Errorf("unable to create temp file: %w", err)
	}

	// From this point on, there are no more early returns, so that the
	// temp file is removed in case of errors.

	enc := json.NewEncoder(f)
	err = enc.Encode(p)
	if err != nil {
		err = fmt.Errorf("unable to encode prefs: %w", err)
	}
	if err == nil {
		err = f.Sync()
		if err != nil {
			err = fmt.Errorf("unable to fsync temp file: %w", err)
		}
	}
	if err == nil {
		err = f.Close()
		f = nil
		if err != nil {
			err = fmt.Errorf("unable to close temp file: %w", err)
		}
	}
	if err == nil {
		err = os.Rename(tempFname, s.fname)
		if err != nil {
			err = fmt.Errorf("unable to rename temp file to final file: %w", err)
		}
	}
	if err != nil {
		if f != nil {
			if closeErr := f.Close(); closeErr != nil {
				s.log.Warnf("Unable to close temp file prior to cleanup: %v", closeErr)
			}
		}
		if remErr := os.Remove(tempFname); remErr != nil {
			s.log.Warnf("Unable to remove temp file %s: %v", tempFname, remErr)
		}
	}

	return err
}

// SaveLastRoute records dev as the last selected route. A nil dev clears the
// record while keeping the filter.
func (s *Store) SaveLastRoute(dev *route.Device, filter route.FilterMode) error {
	p := Prefs{Filter: filter}
	if dev != nil {
		p.LastDeviceID = dev.ID
		p.LastDeviceType = dev.Type
	}
	return s.Save(p)
}
