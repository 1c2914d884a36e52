// Package namestore loads device display-name overrides from a TOML file
// and keeps them fresh while the file is edited. The overrides feed the
// picker dialogs, which otherwise fall back to the default English names per
// device category.
//
// File format:
//
//	[names]
//	speaker = "Alto-falante"
//	bluetooth = "Fone Bluetooth"
package namestore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/companyzero/audioroute/route"
	"github.com/decred/slog"
	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml"
)

type namesFile struct {
	Names map[string]string `toml:"names"`
}

// Store holds the current set of display-name overrides.
type Store struct {
	fname string
	log   slog.Logger

	mtx      sync.Mutex
	names    map[route.DeviceType]string
	onReload func(map[route.DeviceType]string)
}

// New creates a store backed by fname and performs the initial load. A
// missing file is not an error: the store starts empty and picks the file up
// once it appears. A nil log disables logging.
func New(fname string, log slog.Logger) *Store {
	if log == nil {
		log = slog.Disabled
	}
	s := &Store{fname: fname, log: log}
	if err := s.reload(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Unable to load display names from %s: %v", fname, err)
	}
	return s
}

// Names returns the current overrides. The returned map is a copy.
func (s *Store) Names() map[route.DeviceType]string {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	res := make(map[route.DeviceType]string, len(s.names))
	for k, v := range s.names {
		res[k] = v
	}
	return res
}

// OnReload sets a callback invoked with the fresh override set after every
// successful reload.
func (s *Store) OnReload(f func(map[route.DeviceType]string)) {
	s.mtx.Lock()
	s.onReload = f
	s.mtx.Unlock()
}

// reload reads the file and swaps the override set. Entries with an
// unrecognized device type are skipped with a warning instead of failing the
// whole file.
func (s *Store) reload() error {
	tree, err := toml.LoadFile(s.fname)
	if err != nil {
		return err
	}
	var nf namesFile
	if err := tree.Unmarshal(&nf); err != nil {
		return err
	}

	names := make(map[route.DeviceType]string, len(nf.Names))
	for typ, name := range nf.Names {
		dt := route.ParseDeviceType(typ)
		if dt == route.DeviceUnknown && typ != string(route.DeviceUnknown) {
			s.log.Warnf("Skipping display name for unknown device type %q", typ)
			continue
		}
		if name == "" {
			continue
		}
		names[dt] = name
	}

	s.mtx.Lock()
	s.names = names
	cb := s.onReload
	s.mtx.Unlock()

	if cb != nil {
		cb(s.Names())
	}
	return nil
}

// Run watches the file for changes until ctx is canceled, reloading the
// overrides after every change. Watch errors are logged; the loop keeps
// going.
func (s *Store) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the containing dir so that a file that does not exist yet is
	// picked up on creation and editors that replace the file
	// (rename-over) keep triggering events. Watching the file itself is
	// best-effort on top of that.
	if err := watcher.Add(filepath.Dir(s.fname)); err != nil {
		return err
	}
	if err := watcher.Add(s.fname); err != nil {
		s.log.Debugf("Unable to watch %s directly: %v", s.fname, err)
	}

	// chanReload debounces file events so that a burst of writes causes
	// a single reload.
	var chanReload <-chan time.Time

	s.log.Debugf("Watching display names file %s", s.fname)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-chanReload:
			chanReload = nil
			if err := s.reload(); err != nil {
				s.log.Errorf("Unable to reload display names: %v", err)
			} else {
				s.log.Infof("Reloaded display names from %s", s.fname)
			}
			// Re-add the watch in case the file was replaced.
			if err := watcher.Add(s.fname); err != nil {
				s.log.Debugf("Unable to re-watch %s: %v", s.fname, err)
			}

		case event, ok := <-watcher.Events:
			if !ok {
				s.log.Warnf("watcher.Events not ok")
				return nil
			}
			// Dir watch events carry every file in the dir; only
			// the names file matters.
			if filepath.Clean(event.Name) != filepath.Clean(s.fname) {
				continue
			}
			s.log.Debugf("Watcher event: %s", event)
			chanReload = time.After(time.Millisecond * 100)

		case err, ok := <-watcher.Errors:
			if !ok {
				s.log.Warnf("watcher.Errors not ok")
				return nil
			}
			s.log.Debugf("Watcher error: %v", err)
		}
	}
}
