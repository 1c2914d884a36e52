package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/companyzero/audioroute/native"
	"github.com/companyzero/audioroute/route"
	"github.com/decred/slog"
	"golang.org/x/sync/errgroup"
)

// PickerOpts carries everything a custom picker needs to render a device
// selection dialog.
type PickerOpts struct {
	// Title of the dialog. Empty means the picker's default title.
	Title string

	// DisplayNames overrides per-type device display names.
	DisplayNames map[route.DeviceType]string

	// Devices to offer for selection.
	Devices []route.Device

	// SelectedID is the id of the currently active device, when known.
	SelectedID string
}

// PickerFunc presents a device selection dialog and returns the chosen
// device. A false bool means the user dismissed the dialog without choosing,
// which is not an error.
type PickerFunc func(ctx context.Context, opts PickerOpts) (route.Device, bool, error)

// Config holds the configuration for a route controller.
type Config struct {
	// Backend performs the platform routing work. Required.
	Backend native.Backend

	// Picker presents a custom device selection dialog. When nil and the
	// backend has no native picker, picker-driven operations fail with
	// ErrPickerUnavailable.
	Picker PickerFunc

	// PickerTitle overrides the title of custom picker dialogs.
	PickerTitle string

	// DisplayNames overrides the per-type device display names passed to
	// custom pickers.
	DisplayNames map[route.DeviceType]string

	// Filter selects which devices queries consider. The zero value is
	// FilterCommunication.
	Filter route.FilterMode

	// Notifications may be specified to use a preexisting notification
	// manager. This is useful to register for notifications before the
	// client starts running.
	Notifications *NotificationManager

	// Logger is a function that generates loggers for each of the
	// client's subsystems.
	Logger func(subsys string) slog.Logger
}

func (cfg *Config) logger(subsys string) slog.Logger {
	if cfg.Logger == nil {
		return slog.Disabled
	}

	return cfg.Logger(subsys)
}

// Client is the route controller. It decides, per user intent, between
// toggling the built-in devices directly and presenting a device picker, and
// fans platform state changes out to notification subscribers.
type Client struct {
	cfg   *Config
	log   slog.Logger
	br    *Bridge
	ntfns *NotificationManager

	pickerMtx sync.Mutex
	picker    PickerFunc

	runDone chan struct{}
}

// New creates a route controller from cfg.
func New(cfg Config) (*Client, error) {
	if cfg.Backend == nil {
		return nil, ErrBackendRequired
	}
	if !cfg.Filter.Valid() {
		return nil, invalidFilterError{mode: cfg.Filter}
	}

	ntfns := cfg.Notifications
	if ntfns == nil {
		ntfns = NewNotificationManager()
	}

	c := &Client{
		cfg:     &cfg,
		log:     cfg.logger("RTCL"),
		br:      NewBridge(cfg.Backend, cfg.logger("BRDG")),
		ntfns:   ntfns,
		picker:  cfg.Picker,
		runDone: make(chan struct{}),
	}
	return c, nil
}

// SetPicker replaces the custom picker and returns the previous one. An
// embedding UI uses this to take over device selection while it is active.
func (c *Client) SetPicker(p PickerFunc) PickerFunc {
	c.pickerMtx.Lock()
	prev := c.picker
	c.picker = p
	c.pickerMtx.Unlock()
	return prev
}

func (c *Client) currentPicker() PickerFunc {
	c.pickerMtx.Lock()
	defer c.pickerMtx.Unlock()
	return c.picker
}

// Notifications returns the manager used to register for client
// notifications.
func (c *Client) Notifications() *NotificationManager {
	return c.ntfns
}

// Bridge returns the tolerant platform call surface backing this client.
func (c *Client) Bridge() *Bridge {
	return c.br
}

// AvailableDevices returns the currently reachable output devices under the
// configured filter. Failures degrade to an empty list.
func (c *Client) AvailableDevices(ctx context.Context) []route.Device {
	return c.br.AvailableDevices(ctx, c.cfg.Filter)
}

// CurrentDevice returns the presently active output device or nil when
// undetermined.
func (c *Client) CurrentDevice(ctx context.Context) *route.Device {
	return c.br.CurrentDevice(ctx)
}

// HasExternalDevices reports whether any non built-in device is available.
func (c *Client) HasExternalDevices(ctx context.Context) bool {
	return c.br.HasExternalDevices(ctx)
}

// LastState returns the most recent route state reported by the platform.
func (c *Client) LastState() route.State {
	return c.br.LastState()
}

// SetAudioDevice requests a switch to the given device id, fire-and-forget.
func (c *Client) SetAudioDevice(ctx context.Context, id string) {
	c.br.SetAudioDevice(ctx, id)
}

// ShowRoutePicker unconditionally presents a device picker. It never toggles
// devices directly, regardless of what is available. On platforms with a
// native system picker that picker is shown; otherwise the configured custom
// picker runs and the user's selection, if any, is applied. Errors on the
// custom picker path surface to the caller.
func (c *Client) ShowRoutePicker(ctx context.Context) error {
	if c.br.HasNativePicker() {
		return c.br.ShowNativePicker(ctx)
	}

	devs, err := c.br.availableDevices(ctx, c.cfg.Filter)
	if err != nil {
		return err
	}
	return c.pickFromList(ctx, devs)
}

// pickFromList runs the custom picker over devs and applies the selection.
// This is the dialog-driven critical path, so errors surface to the caller
// instead of being swallowed.
func (c *Client) pickFromList(ctx context.Context, devs []route.Device) error {
	picker := c.currentPicker()
	if picker == nil {
		return ErrPickerUnavailable
	}

	var selID string
	if cur := c.br.CurrentDevice(ctx); cur != nil {
		selID = cur.ID
	}
	dev, ok, err := picker(ctx, PickerOpts{
		Title:        c.cfg.PickerTitle,
		DisplayNames: c.cfg.DisplayNames,
		Devices:      devs,
		SelectedID:   selID,
	})
	if err != nil {
		return err
	}
	if !ok {
		// Dismissal means no selection, not an error.
		c.log.Debugf("Picker dismissed without a selection")
		return nil
	}

	c.log.Infof("Switching route to picked device %s", dev.ID)
	return c.br.setAudioDevice(ctx, dev.ID)
}

// ChangeRoute performs a smart route change. When only the built-in speaker
// and receiver are available it toggles between them without showing any UI.
// Otherwise it presents a picker with every available device. When the
// device query or the toggle fails, the controller falls back to the picker
// once; on platforms with a native picker a failing fallback is logged and
// swallowed, while custom picker platforms surface the failure to the
// caller.
func (c *Client) ChangeRoute(ctx context.Context) error {
	devs, err := c.br.availableDevices(ctx, c.cfg.Filter)
	if err != nil {
		return c.pickerFallback(ctx, fmt.Errorf("device query: %w", err))
	}

	if route.AllBuiltIn(devs) {
		if err := c.br.toggleBuiltInRoute(ctx); err != nil {
			return c.pickerFallback(ctx, fmt.Errorf("toggle: %w", err))
		}
		return nil
	}

	return c.showPicker(ctx, devs)
}

// showPicker presents the platform-appropriate picker on the smart-change
// path. Native picker failures are swallowed on this path.
func (c *Client) showPicker(ctx context.Context, devs []route.Device) error {
	if c.br.HasNativePicker() {
		if err := c.br.ShowNativePicker(ctx); err != nil {
			c.log.Errorf("Unable to show native picker: %v", err)
		}
		return nil
	}
	return c.pickFromList(ctx, devs)
}

// pickerFallback is the single fallback attempt after a failed query or
// toggle on the smart-change path.
func (c *Client) pickerFallback(ctx context.Context, cause error) error {
	c.log.Warnf("Smart route change failed (%v); falling back to picker",
		cause)

	if c.br.HasNativePicker() {
		if err := c.br.ShowNativePicker(ctx); err != nil {
			c.log.Errorf("Fallback picker failed: %v", err)
		}
		return nil
	}

	devs, err := c.br.availableDevices(ctx, c.cfg.Filter)
	if err != nil {
		return err
	}
	return c.pickFromList(ctx, devs)
}

// ToggleSpeakerReceiver unconditionally switches between the built-in
// speaker and receiver, ignoring any external devices. The switch is
// fire-and-forget: failures are logged and swallowed and callers observe the
// outcome through the state change stream.
func (c *Client) ToggleSpeakerReceiver(ctx context.Context) {
	target := c.toggleTarget(ctx)
	c.log.Debugf("Toggling built-in route to %s", target)
	c.br.SetAudioDevice(ctx, target)
}

// toggleTarget computes the device id to switch to for a speaker/receiver
// toggle. When the current device is the speaker the target is the receiver
// and vice versa. When the current device is indeterminate or external, the
// target is the first built-in typed device in the list, then the first
// device at all, then the reserved speaker id.
func (c *Client) toggleTarget(ctx context.Context) string {
	cur := c.br.CurrentDevice(ctx)
	devs := c.br.AvailableDevices(ctx, c.cfg.Filter)

	if cur != nil {
		switch cur.Type {
		case route.DeviceSpeaker:
			if d, ok := route.FirstOfType(devs, route.DeviceReceiver); ok {
				return d.ID
			}
			return route.ReceiverDeviceID
		case route.DeviceReceiver:
			if d, ok := route.FirstOfType(devs, route.DeviceSpeaker); ok {
				return d.ID
			}
			return route.SpeakerDeviceID
		}
	}

	if d, ok := route.FirstBuiltIn(devs); ok {
		return d.ID
	}
	if len(devs) > 0 {
		return devs[0].ID
	}
	return route.SpeakerDeviceID
}

// diffDevices returns the devices present in next but not in prev and the
// ones present in prev but not in next, keyed by id.
func diffDevices(prev, next []route.Device) (added, removed []route.Device) {
	prevIDs := make(map[string]struct{}, len(prev))
	for _, d := range prev {
		prevIDs[d.ID] = struct{}{}
	}
	nextIDs := make(map[string]struct{}, len(next))
	for _, d := range next {
		nextIDs[d.ID] = struct{}{}
	}
	for _, d := range next {
		if _, ok := prevIDs[d.ID]; !ok {
			added = append(added, d)
		}
	}
	for _, d := range prev {
		if _, ok := nextIDs[d.ID]; !ok {
			removed = append(removed, d)
		}
	}
	return added, removed
}

func sameSelection(a, b *route.Device) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

// eventLoop fans bridge state changes out to notification subscribers,
// deriving device added/removed and selection change notifications from
// consecutive snapshots. The first snapshot establishes the baseline and
// does not produce added/removed notifications.
func (c *Client) eventLoop(ctx context.Context) error {
	var prev route.State
	var havePrev bool
	for {
		select {
		case st := <-c.br.StateChanges():
			c.ntfns.notifyRouteChanged(st)
			if havePrev {
				added, removed := diffDevices(prev.Devices, st.Devices)
				if len(added) > 0 {
					c.ntfns.notifyDevicesAdded(added)
				}
				if len(removed) > 0 {
					c.ntfns.notifyDevicesRemoved(removed)
				}
				if !sameSelection(prev.Selected, st.Selected) {
					c.ntfns.notifySelectionChanged(prev.Selected, st.Selected)
				}
			} else if st.Selected != nil {
				c.ntfns.notifySelectionChanged(nil, st.Selected)
			}
			prev, havePrev = st, true
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run runs the client until ctx is canceled or a subsystem fails.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.runDone)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := c.cfg.Backend.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			c.log.Errorf("Backend errored: %v", err)
		}
		return err
	})

	g.Go(func() error { return c.br.Run(gctx) })

	g.Go(func() error { return c.eventLoop(gctx) })

	c.log.Infof("Starting route controller")
	return g.Wait()
}

// RunDone returns a channel that is closed once Run has returned.
func (c *Client) RunDone() <-chan struct{} {
	return c.runDone
}
