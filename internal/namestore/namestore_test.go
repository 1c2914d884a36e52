package namestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/companyzero/audioroute/internal/assert"
	"github.com/companyzero/audioroute/internal/testutils"
	"github.com/companyzero/audioroute/route"
)

// TestMissingFile asserts a store over a missing file starts empty.
func TestMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "names.toml"), nil)
	assert.DeepEqual(t, len(s.Names()), 0)
}

// TestLoad asserts overrides load and unknown types are skipped.
func TestLoad(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "names.toml")
	data := `
[names]
speaker = "Alto-falante"
bluetooth = "Fone Bluetooth"
quadraphonic = "Nope"
wired = ""
`
	assert.NilErr(t, os.WriteFile(fname, []byte(data), 0o600))

	s := New(fname, nil)
	assert.DeepEqual(t, s.Names(), map[route.DeviceType]string{
		route.DeviceSpeaker:   "Alto-falante",
		route.DeviceBluetooth: "Fone Bluetooth",
	})
}

// TestReloadCallback asserts the reload callback observes fresh contents.
func TestReloadCallback(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "names.toml")
	assert.NilErr(t, os.WriteFile(fname,
		[]byte("[names]\nspeaker = \"One\"\n"), 0o600))

	s := New(fname, nil)
	reloaded := make(chan map[route.DeviceType]string, 1)
	s.OnReload(func(names map[route.DeviceType]string) {
		reloaded <- names
	})

	assert.NilErr(t, os.WriteFile(fname,
		[]byte("[names]\nspeaker = \"Two\"\n"), 0o600))
	assert.NilErr(t, s.reload())

	got := assert.ChanWritten(t, reloaded)
	assert.DeepEqual(t, got[route.DeviceSpeaker], "Two")
	assert.DeepEqual(t, s.Names()[route.DeviceSpeaker], "Two")
}

// TestWatchFileAppearsLater asserts the watcher picks the file up when it is
// only created after Run starts, and keeps following later edits.
func TestWatchFileAppearsLater(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "names.toml")

	s := New(fname, testutils.TestLoggerSys(t, "NAME"))
	assert.DeepEqual(t, len(s.Names()), 0)

	reloaded := make(chan map[route.DeviceType]string, 1)
	s.OnReload(func(names map[route.DeviceType]string) {
		reloaded <- names
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	// Let the watcher establish itself before the file shows up.
	time.Sleep(100 * time.Millisecond)
	assert.NilErr(t, os.WriteFile(fname,
		[]byte("[names]\nspeaker = \"Alto-falante\"\n"), 0o600))

	got := assert.ChanWritten(t, reloaded)
	assert.DeepEqual(t, got[route.DeviceSpeaker], "Alto-falante")

	// Unrelated files in the same dir do not trigger a reload.
	assert.NilErr(t, os.WriteFile(filepath.Join(dir, "other.toml"),
		[]byte("[names]\nspeaker = \"Nope\"\n"), 0o600))
	assert.ChanNotWritten(t, reloaded, 300*time.Millisecond)

	// Later edits keep being followed.
	assert.NilErr(t, os.WriteFile(fname,
		[]byte("[names]\nspeaker = \"Altavoz\"\n"), 0o600))
	got = assert.ChanWritten(t, reloaded)
	assert.DeepEqual(t, got[route.DeviceSpeaker], "Altavoz")

	cancel()
	assert.ErrorIs(t, assert.ChanWritten(t, runErr), context.Canceled)
}
