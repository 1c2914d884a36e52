// Package native binds the audio route controls to the platform audio
// subsystem. The concrete backend is selected at build time: cgo builds use
// the malgo (miniaudio) backend, cgo-less and nonative builds use a null
// backend that reports no devices.
package native

import (
	"context"
	"errors"
	"time"

	"github.com/companyzero/audioroute/route"
	"github.com/decred/slog"
)

var (
	// ErrNoNativePicker is returned by ShowNativePicker on platforms
	// without an OS-provided device picker UI.
	ErrNoNativePicker = errors.New("platform has no native device picker")

	// ErrDeviceNotFound is returned when a switch targets an id that is
	// not present in the current device list.
	ErrDeviceNotFound = errors.New("audio device not found")
)

// Backend is the platform capability consumed by the route bridge. Exactly
// one implementation is compiled in, chosen by build tags.
type Backend interface {
	// Devices returns the devices currently available for output,
	// restricted by the given filter mode.
	Devices(ctx context.Context, filter route.FilterMode) ([]route.Device, error)

	// CurrentDevice returns the active output device, or nil when the
	// platform cannot determine one.
	CurrentDevice(ctx context.Context) (*route.Device, error)

	// SetDevice requests a switch to the device with the given id. The id
	// may be one of the reserved built-in ids.
	SetDevice(ctx context.Context, id string) error

	// Toggle switches between the built-in speaker and receiver.
	Toggle(ctx context.Context) error

	// HasNativePicker reports whether the platform offers its own device
	// picker UI.
	HasNativePicker() bool

	// ShowNativePicker asks the platform to display its device picker.
	ShowNativePicker(ctx context.Context) error

	// Events returns the channel on which fresh route state snapshots are
	// delivered. The channel is never closed.
	Events() <-chan route.State

	// Run runs the device monitor until the context is canceled.
	Run(ctx context.Context) error

	// Close releases the platform resources.
	Close() error
}

// newPlatformBackend is set by the init() of the compiled-in implementation.
var newPlatformBackend func(cfg *config) (Backend, error)

type config struct {
	log          slog.Logger
	pollInterval time.Duration
	verifyDelay  time.Duration
	chime        bool
}

func defaultConfig() *config {
	return &config{
		log:          slog.Disabled,
		pollInterval: 2 * time.Second,
		verifyDelay:  300 * time.Millisecond,
	}
}

// Option is a config option for NewBackend.
type Option func(cfg *config)

// WithLog sets the logger used by the backend.
func WithLog(log slog.Logger) Option {
	return func(cfg *config) {
		cfg.log = log
	}
}

// WithPollInterval sets how often the monitor re-enumerates devices looking
// for topology changes.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *config) {
		cfg.pollInterval = d
	}
}

// WithVerifyDelay sets how long to wait after a switch before re-checking
// that the target device is still present. Zero disables the check.
func WithVerifyDelay(d time.Duration) Option {
	return func(cfg *config) {
		cfg.verifyDelay = d
	}
}

// WithChime enables an audible confirmation chime on the new device after a
// successful switch.
func WithChime(chime bool) Option {
	return func(cfg *config) {
		cfg.chime = chime
	}
}

// NewBackend creates the platform backend compiled into this binary.
func NewBackend(opts ...Option) (Backend, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return newPlatformBackend(cfg)
}
