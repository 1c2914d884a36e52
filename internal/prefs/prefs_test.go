package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/companyzero/audioroute/internal/assert"
	"github.com/companyzero/audioroute/route"
)

// TestLoadMissing asserts loading before any save returns ErrNotFound.
func TestLoadMissing(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "prefs.json"), nil)
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestSaveLoadRoundtrip asserts saved prefs load back identically.
func TestSaveLoadRoundtrip(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "prefs.json"), nil)

	dev := &route.Device{ID: "bt-headset-1", Type: route.DeviceBluetooth}
	assert.NilErr(t, s.SaveLastRoute(dev, route.FilterMedia))

	p, err := s.Load()
	assert.NilErr(t, err)
	assert.DeepEqual(t, p, Prefs{
		LastDeviceID:   "bt-headset-1",
		LastDeviceType: route.DeviceBluetooth,
		Filter:         route.FilterMedia,
	})

	// Clearing the route keeps the filter.
	assert.NilErr(t, s.SaveLastRoute(nil, route.FilterMedia))
	p, err = s.Load()
	assert.NilErr(t, err)
	assert.DeepEqual(t, p, Prefs{Filter: route.FilterMedia})
}

// TestNoTempLeftover asserts a successful save leaves only the final file.
func TestNoTempLeftover(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "prefs.json"), nil)
	assert.NilErr(t, s.Save(Prefs{Filter: route.FilterAll}))

	entries, err := os.ReadDir(dir)
	assert.NilErr(t, err)
	if len(entries) != 1 || entries[0].Name() != "prefs.json" {
		t.Fatalf("unexpected dir contents: %v", entries)
	}
}

// TestCorruptFile asserts a corrupt prefs file errors instead of returning
// garbage.
func TestCorruptFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "prefs.json")
	assert.NilErr(t, os.WriteFile(fname, []byte("{not json"), 0o600))
	s := NewStore(fname, nil)
	_, err := s.Load()
	assert.NonNilErr(t, err)
}
