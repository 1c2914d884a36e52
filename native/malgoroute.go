//go:build cgo && !nonative

package native

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/companyzero/audioroute/route"
	"github.com/decred/slog"

	"github.com/gen2brain/malgo"
)

func init() {
	newPlatformBackend = newMalgoBackend
}

// emptyDeviceID is an empty malgo device id.
var emptyDeviceID malgo.DeviceID

// enumDevice is one enumerated playback endpoint.
type enumDevice struct {
	dev       route.Device
	malgoID   malgo.DeviceID
	isDefault bool
}

// malgoBackend implements Backend on top of the malgo (miniaudio) library.
type malgoBackend struct {
	cfg      *config
	log      slog.Logger
	malgoCtx *malgo.AllocatedContext
	events   chan route.State

	mtx        sync.Mutex
	selectedID string
	lastState  route.State
	closed     bool
}

func newMalgoBackend(cfg *config) (Backend, error) {
	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}

	return &malgoBackend{
		cfg:      cfg,
		log:      cfg.log,
		malgoCtx: malgoCtx,
		events:   make(chan route.State, 8),
	}, nil
}

// deviceIDString converts a malgo device id into a stable string id. The raw
// id is zero padded and the padding does not survive JSON payloads, so it is
// trimmed.
func deviceIDString(id malgo.DeviceID) string {
	return strings.TrimRight(string(id[:]), "\x00")
}

// enumerate lists the playback endpoints the platform reports. Devices whose
// info cannot be read are skipped with a warning instead of failing the whole
// enumeration.
func (b *malgoBackend) enumerate() ([]enumDevice, error) {
	devices, err := b.malgoCtx.Devices(malgo.Playback)
	if err != nil {
		return nil, err
	}

	res := make([]enumDevice, 0, len(devices))
	setIds := make(map[string]struct{}, len(devices))
	for _, dev := range devices {
		full, err := b.malgoCtx.DeviceInfo(malgo.Playback, dev.ID, malgo.Shared)
		if err != nil {
			b.log.Warnf("Unable to get audio device info: %v", err)
			continue
		}

		// Avoid duplicate device ids.
		id := deviceIDString(full.ID)
		if _, ok := setIds[id]; ok {
			continue
		}
		setIds[id] = struct{}{}

		res = append(res, enumDevice{
			dev:       route.Device{ID: id, Type: classifyDeviceName(full.Name())},
			malgoID:   full.ID,
			isDefault: full.IsDefault == 1,
		})
	}

	return res, nil
}

func routeDevices(devs []enumDevice) []route.Device {
	res := make([]route.Device, len(devs))
	for i := range devs {
		res[i] = devs[i].dev
	}
	return res
}

// current returns the active device given an enumeration: the tracked
// selection while it remains available, the platform default otherwise.
func (b *malgoBackend) current(devs []enumDevice) *route.Device {
	b.mtx.Lock()
	sel := b.selectedID
	b.mtx.Unlock()

	if sel != "" {
		for i := range devs {
			if devs[i].dev.ID == sel {
				d := devs[i].dev
				return &d
			}
		}
		b.log.Debugf("Selected device %q is no longer available", sel)
	}

	for i := range devs {
		if devs[i].isDefault {
			d := devs[i].dev
			return &d
		}
	}
	return nil
}

// Devices is part of the Backend interface.
func (b *malgoBackend) Devices(_ context.Context, filter route.FilterMode) ([]route.Device, error) {
	devs, err := b.enumerate()
	if err != nil {
		return nil, err
	}
	return filterDevices(routeDevices(devs), filter), nil
}

// CurrentDevice is part of the Backend interface.
func (b *malgoBackend) CurrentDevice(_ context.Context) (*route.Device, error) {
	devs, err := b.enumerate()
	if err != nil {
		return nil, err
	}
	return b.current(devs), nil
}

// SetDevice is part of the Backend interface.
func (b *malgoBackend) SetDevice(ctx context.Context, id string) error {
	devs, err := b.enumerate()
	if err != nil {
		return err
	}

	target, ok := resolveTargetID(routeDevices(devs), id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrDeviceNotFound, id)
	}

	b.mtx.Lock()
	b.selectedID = target.ID
	b.mtx.Unlock()
	b.log.Infof("Switched audio route to %q (%s)", target.ID, target.Type)

	if b.cfg.chime {
		var malgoID malgo.DeviceID
		for i := range devs {
			if devs[i].dev.ID == target.ID {
				malgoID = devs[i].malgoID
				break
			}
		}
		if err := b.playChime(ctx, malgoID); err != nil {
			b.log.Warnf("Unable to play route change chime: %v", err)
		}
	}

	// Give the platform a moment to apply the switch, then check the
	// target is still reachable.
	if b.cfg.verifyDelay > 0 {
		select {
		case <-time.After(b.cfg.verifyDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if cur, err := b.enumerate(); err == nil {
			if _, ok := resolveTargetID(routeDevices(cur), target.ID); !ok {
				b.log.Warnf("Device %q not available after switch", target.ID)
			}
		}
	}

	b.publishState()
	return nil
}

// Toggle is part of the Backend interface.
func (b *malgoBackend) Toggle(ctx context.Context) error {
	devs, err := b.enumerate()
	if err != nil {
		return err
	}

	target := route.SpeakerDeviceID
	if cur := b.current(devs); cur != nil && cur.Type == route.DeviceSpeaker {
		target = route.ReceiverDeviceID
	}
	return b.SetDevice(ctx, target)
}

// HasNativePicker is part of the Backend interface. None of the miniaudio
// platforms expose an OS route picker.
func (b *malgoBackend) HasNativePicker() bool { return false }

// ShowNativePicker is part of the Backend interface.
func (b *malgoBackend) ShowNativePicker(_ context.Context) error {
	return ErrNoNativePicker
}

// Events is part of the Backend interface.
func (b *malgoBackend) Events() <-chan route.State {
	return b.events
}

// publishState takes a fresh topology snapshot and delivers it to the events
// channel when it differs from the last published one.
func (b *malgoBackend) publishState() {
	devs, err := b.enumerate()
	if err != nil {
		b.log.Warnf("Unable to snapshot audio devices: %v", err)
		return
	}

	st := route.State{
		Devices:  routeDevices(devs),
		Selected: b.current(devs),
	}

	b.mtx.Lock()
	changed := !st.Equal(b.lastState)
	if changed {
		b.lastState = st
	}
	b.mtx.Unlock()
	if !changed {
		return
	}

	b.log.Debugf("Route state changed: %d devices available", len(st.Devices))
	select {
	case b.events <- st:
	default:
		b.log.Warnf("Events channel full when publishing route state")
	}
}

// Run is part of the Backend interface. It polls the device topology and
// publishes a fresh snapshot whenever it changes.
func (b *malgoBackend) Run(ctx context.Context) error {
	b.publishState()

	ticker := time.NewTicker(b.cfg.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.publishState()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close is part of the Backend interface.
func (b *malgoBackend) Close() error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	if err := b.malgoCtx.Uninit(); err != nil {
		return err
	}
	b.malgoCtx.Free()
	return nil
}
