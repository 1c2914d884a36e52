package client

import (
	"context"
	"sync"

	"github.com/companyzero/audioroute/native"
	"github.com/companyzero/audioroute/route"
	"github.com/davecgh/go-spew/spew"
	"github.com/decred/slog"
)

// Bridge adapts a native.Backend to the tolerant call contract expected by
// UI layers: queries degrade to empty/none/false results instead of failing,
// mutations are fire-and-forget with swallowed errors and the state change
// stream never terminates on the consumer, regardless of platform failures.
//
// The rationale for the tolerant surface is that routing runs alongside live
// calls. A failed switch or an undeterminable device list must not interrupt
// an ongoing call, so callers observe the state change stream instead of
// relying on mutation results.
type Bridge struct {
	backend native.Backend
	log     slog.Logger

	mtx  sync.Mutex
	last route.State

	events chan route.State
}

// NewBridge wraps the given backend. A nil log disables logging.
func NewBridge(backend native.Backend, log slog.Logger) *Bridge {
	if log == nil {
		log = slog.Disabled
	}
	return &Bridge{
		backend: backend,
		log:     log,
		events:  make(chan route.State, 16),
	}
}

// availableDevices is the raising variant of AvailableDevices, used on paths
// where a query failure must surface to the caller.
func (br *Bridge) availableDevices(ctx context.Context, filter route.FilterMode) ([]route.Device, error) {
	return br.backend.Devices(ctx, filter)
}

// setAudioDevice is the raising variant of SetAudioDevice.
func (br *Bridge) setAudioDevice(ctx context.Context, id string) error {
	return br.backend.SetDevice(ctx, id)
}

// toggleBuiltInRoute is the raising variant of ToggleBuiltInRoute.
func (br *Bridge) toggleBuiltInRoute(ctx context.Context) error {
	return br.backend.Toggle(ctx)
}

// AvailableDevices returns the currently reachable output devices. Platform
// failures degrade to an empty list.
func (br *Bridge) AvailableDevices(ctx context.Context, filter route.FilterMode) []route.Device {
	devs, err := br.backend.Devices(ctx, filter)
	if err != nil {
		br.log.Warnf("Unable to list audio devices: %v", err)
		return nil
	}
	return devs
}

// CurrentDevice returns the presently active output device or nil when it
// cannot be determined.
func (br *Bridge) CurrentDevice(ctx context.Context) *route.Device {
	dev, err := br.backend.CurrentDevice(ctx)
	if err != nil {
		br.log.Warnf("Unable to determine current device: %v", err)
		return nil
	}
	return dev
}

// HasExternalDevices reports whether any device beyond the built-in speaker
// and receiver is currently available. Failures map to false.
func (br *Bridge) HasExternalDevices(ctx context.Context) bool {
	devs, err := br.backend.Devices(ctx, route.FilterAll)
	if err != nil {
		br.log.Warnf("Unable to list audio devices: %v", err)
		return false
	}
	for _, d := range devs {
		if !d.Type.IsBuiltIn() {
			return true
		}
	}
	return false
}

// SetAudioDevice requests a switch to the device with the given id. Failures
// are logged and swallowed. Callers observe the outcome through the state
// change stream.
func (br *Bridge) SetAudioDevice(ctx context.Context, id string) {
	if err := br.backend.SetDevice(ctx, id); err != nil {
		br.log.Errorf("Unable to switch to device %q: %v", id, err)
	}
}

// ToggleBuiltInRoute switches between the built-in speaker and receiver.
// Failures are logged and swallowed.
func (br *Bridge) ToggleBuiltInRoute(ctx context.Context) {
	if err := br.backend.Toggle(ctx); err != nil {
		br.log.Errorf("Unable to toggle built-in route: %v", err)
	}
}

// HasNativePicker reports whether the platform offers its own route picker
// UI.
func (br *Bridge) HasNativePicker() bool {
	return br.backend.HasNativePicker()
}

// ShowNativePicker requests the platform show its own device selection UI.
// Any resulting route change is reported through the state change stream.
func (br *Bridge) ShowNativePicker(ctx context.Context) error {
	return br.backend.ShowNativePicker(ctx)
}

// StateChanges returns the stream of route state snapshots. The channel is
// never closed, even after the backend stops producing events.
func (br *Bridge) StateChanges() <-chan route.State {
	return br.events
}

// LastState returns the most recent state delivered by the backend.
func (br *Bridge) LastState() route.State {
	br.mtx.Lock()
	defer br.mtx.Unlock()
	return br.last
}

func (br *Bridge) deliver(st route.State) {
	br.mtx.Lock()
	br.last = st
	br.mtx.Unlock()

	br.log.Tracef("Route state change: %s", spew.Sdump(st))

	select {
	case br.events <- st:
	default:
		br.log.Warnf("State change consumer lagging; dropping update")
	}
}

// Run forwards backend state events until ctx is canceled. The outgoing
// stream stays open even after the backend closes its side, so consumers
// never observe termination.
func (br *Bridge) Run(ctx context.Context) error {
	evs := br.backend.Events()
	for {
		select {
		case st, ok := <-evs:
			if !ok {
				evs = nil
				continue
			}
			br.deliver(st)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
