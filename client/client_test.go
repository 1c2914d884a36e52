package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/companyzero/audioroute/internal/assert"
	"github.com/companyzero/audioroute/internal/testutils"
	"github.com/companyzero/audioroute/native"
	"github.com/companyzero/audioroute/route"
)

// testBackend is a scriptable native.Backend for tests.
type testBackend struct {
	mtx    sync.Mutex
	devs   []route.Device
	cur    *route.Device
	events chan route.State

	nativePicker bool

	devErr    error
	setErr    error
	toggleErr error
	pickerErr error

	setCalls    []string
	toggleCalls int
	pickerCalls int
}

func newTestBackend() *testBackend {
	return &testBackend{events: make(chan route.State, 8)}
}

func (tb *testBackend) Devices(_ context.Context, _ route.FilterMode) ([]route.Device, error) {
	tb.mtx.Lock()
	defer tb.mtx.Unlock()
	if tb.devErr != nil {
		return nil, tb.devErr
	}
	devs := make([]route.Device, len(tb.devs))
	copy(devs, tb.devs)
	return devs, nil
}

func (tb *testBackend) CurrentDevice(_ context.Context) (*route.Device, error) {
	tb.mtx.Lock()
	defer tb.mtx.Unlock()
	if tb.devErr != nil {
		return nil, tb.devErr
	}
	if tb.cur == nil {
		return nil, nil
	}
	d := *tb.cur
	return &d, nil
}

func (tb *testBackend) SetDevice(_ context.Context, id string) error {
	tb.mtx.Lock()
	defer tb.mtx.Unlock()
	tb.setCalls = append(tb.setCalls, id)
	return tb.setErr
}

func (tb *testBackend) Toggle(_ context.Context) error {
	tb.mtx.Lock()
	defer tb.mtx.Unlock()
	tb.toggleCalls++
	return tb.toggleErr
}

func (tb *testBackend) HasNativePicker() bool {
	tb.mtx.Lock()
	defer tb.mtx.Unlock()
	return tb.nativePicker
}

func (tb *testBackend) ShowNativePicker(_ context.Context) error {
	tb.mtx.Lock()
	defer tb.mtx.Unlock()
	tb.pickerCalls++
	if !tb.nativePicker {
		return native.ErrNoNativePicker
	}
	return tb.pickerErr
}

func (tb *testBackend) Events() <-chan route.State {
	return tb.events
}

func (tb *testBackend) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (tb *testBackend) Close() error { return nil }

func (tb *testBackend) gotSetCalls() []string {
	tb.mtx.Lock()
	defer tb.mtx.Unlock()
	return append([]string(nil), tb.setCalls...)
}

func (tb *testBackend) gotToggleCalls() int {
	tb.mtx.Lock()
	defer tb.mtx.Unlock()
	return tb.toggleCalls
}

func (tb *testBackend) gotPickerCalls() int {
	tb.mtx.Lock()
	defer tb.mtx.Unlock()
	return tb.pickerCalls
}

// newTestClient creates a client backed by tb. modCfg may be nil.
func newTestClient(t testing.TB, tb *testBackend, modCfg func(*Config)) *Client {
	t.Helper()
	cfg := Config{
		Backend: tb,
		Logger:  testutils.TestLoggerBackend(t, "client"),
	}
	if modCfg != nil {
		modCfg(&cfg)
	}
	c, err := New(cfg)
	assert.NilErr(t, err)
	return c
}

// TestNewRejectsBadConfig asserts New errors on missing backend and invalid
// filter modes.
func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrBackendRequired)

	_, err = New(Config{Backend: newTestBackend(), Filter: route.FilterMode(99)})
	assert.ErrorIs(t, err, invalidFilterError{})
}

// TestShowRoutePickerNeverToggles asserts the picker-only intent never
// issues a toggle, even when only built-in devices are available.
func TestShowRoutePickerNeverToggles(t *testing.T) {
	t.Parallel()

	tb := newTestBackend()
	tb.devs = []route.Device{
		{ID: "spk", Type: route.DeviceSpeaker},
		{ID: "rcv", Type: route.DeviceReceiver},
	}

	pickerCalls := 0
	c := newTestClient(t, tb, func(cfg *Config) {
		cfg.Picker = func(_ context.Context, opts PickerOpts) (route.Device, bool, error) {
			pickerCalls++
			return route.Device{}, false, nil
		}
	})

	err := c.ShowRoutePicker(context.Background())
	assert.NilErr(t, err)
	assert.DeepEqual(t, pickerCalls, 1)
	assert.DeepEqual(t, tb.gotToggleCalls(), 0)
	assert.DeepEqual(t, len(tb.gotSetCalls()), 0)
}

// TestShowRoutePickerNative asserts the picker-only intent delegates to the
// native picker when the platform has one.
func TestShowRoutePickerNative(t *testing.T) {
	t.Parallel()

	tb := newTestBackend()
	tb.nativePicker = true
	c := newTestClient(t, tb, nil)

	err := c.ShowRoutePicker(context.Background())
	assert.NilErr(t, err)
	assert.DeepEqual(t, tb.gotPickerCalls(), 1)
	assert.DeepEqual(t, tb.gotToggleCalls(), 0)
}

// TestShowRoutePickerWithoutPicker asserts the picker-only intent errors
// when neither a native nor a custom picker exists.
func TestShowRoutePickerWithoutPicker(t *testing.T) {
	t.Parallel()

	tb := newTestBackend()
	c := newTestClient(t, tb, nil)

	err := c.ShowRoutePicker(context.Background())
	assert.ErrorIs(t, err, ErrPickerUnavailable)
}

// TestShowRoutePickerAppliesSelection asserts the controller switches to the
// exact device the picker resolved and issues no switch on dismissal.
func TestShowRoutePickerAppliesSelection(t *testing.T) {
	t.Parallel()

	devs := []route.Device{
		{ID: "spk", Type: route.DeviceSpeaker},
		{ID: "bt-1", Type: route.DeviceBluetooth},
	}

	tests := []struct {
		name     string
		pick     route.Device
		ok       bool
		wantSets []string
	}{{
		name:     "selection switches",
		pick:     devs[1],
		ok:       true,
		wantSets: []string{"bt-1"},
	}, {
		name:     "dismissal switches nothing",
		ok:       false,
		wantSets: nil,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tb := newTestBackend()
			tb.devs = devs
			c := newTestClient(t, tb, func(cfg *Config) {
				cfg.Picker = func(_ context.Context, opts PickerOpts) (route.Device, bool, error) {
					assert.DeepEqual(t, opts.Devices, devs)
					return tc.pick, tc.ok, nil
				}
			})

			err := c.ShowRoutePicker(context.Background())
			assert.NilErr(t, err)
			assert.DeepEqual(t, tb.gotSetCalls(), tc.wantSets)
		})
	}
}

// TestChangeRouteDecision asserts the smart-change decision rule: toggle
// when every available device is built-in, picker otherwise.
func TestChangeRouteDecision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		devs        []route.Device
		wantToggles int
		wantPicker  int
	}{{
		name: "only built-ins toggles",
		devs: []route.Device{
			{ID: "spk", Type: route.DeviceSpeaker},
			{ID: "rcv", Type: route.DeviceReceiver},
		},
		wantToggles: 1,
		wantPicker:  0,
	}, {
		name: "external device shows picker",
		devs: []route.Device{
			{ID: "spk", Type: route.DeviceSpeaker},
			{ID: "rcv", Type: route.DeviceReceiver},
			{ID: "bt-1", Type: route.DeviceBluetooth},
		},
		wantToggles: 0,
		wantPicker:  1,
	}, {
		name:        "empty device list shows picker",
		devs:        nil,
		wantToggles: 0,
		wantPicker:  1,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tb := newTestBackend()
			tb.devs = tc.devs

			pickerCalls := 0
			c := newTestClient(t, tb, func(cfg *Config) {
				cfg.Picker = func(_ context.Context, _ PickerOpts) (route.Device, bool, error) {
					pickerCalls++
					return route.Device{}, false, nil
				}
			})

			err := c.ChangeRoute(context.Background())
			assert.NilErr(t, err)
			assert.DeepEqual(t, tb.gotToggleCalls(), tc.wantToggles)
			assert.DeepEqual(t, pickerCalls, tc.wantPicker)
		})
	}
}

// TestChangeRouteFallback asserts the single picker fallback after a failed
// query or toggle, including the platform asymmetry: swallowed on native
// picker platforms, surfaced on custom picker platforms.
func TestChangeRouteFallback(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")
	builtins := []route.Device{
		{ID: "spk", Type: route.DeviceSpeaker},
		{ID: "rcv", Type: route.DeviceReceiver},
	}

	t.Run("toggle failure falls back to custom picker", func(t *testing.T) {
		tb := newTestBackend()
		tb.devs = builtins
		tb.toggleErr = errBoom

		pickerCalls := 0
		c := newTestClient(t, tb, func(cfg *Config) {
			cfg.Picker = func(_ context.Context, _ PickerOpts) (route.Device, bool, error) {
				pickerCalls++
				return route.Device{}, false, nil
			}
		})

		err := c.ChangeRoute(context.Background())
		assert.NilErr(t, err)
		assert.DeepEqual(t, tb.gotToggleCalls(), 1)
		assert.DeepEqual(t, pickerCalls, 1)
	})

	t.Run("toggle failure falls back to native picker", func(t *testing.T) {
		tb := newTestBackend()
		tb.devs = builtins
		tb.toggleErr = errBoom
		tb.nativePicker = true
		c := newTestClient(t, tb, nil)

		err := c.ChangeRoute(context.Background())
		assert.NilErr(t, err)
		assert.DeepEqual(t, tb.gotPickerCalls(), 1)
	})

	t.Run("native fallback failure is swallowed", func(t *testing.T) {
		tb := newTestBackend()
		tb.devs = builtins
		tb.toggleErr = errBoom
		tb.nativePicker = true
		tb.pickerErr = errBoom
		c := newTestClient(t, tb, nil)

		err := c.ChangeRoute(context.Background())
		assert.NilErr(t, err)
		assert.DeepEqual(t, tb.gotPickerCalls(), 1)
	})

	t.Run("custom platform query failure surfaces", func(t *testing.T) {
		tb := newTestBackend()
		tb.devErr = errBoom

		c := newTestClient(t, tb, func(cfg *Config) {
			cfg.Picker = func(_ context.Context, _ PickerOpts) (route.Device, bool, error) {
				t.Fatal("picker must not run without a device list")
				return route.Device{}, false, nil
			}
		})

		err := c.ChangeRoute(context.Background())
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("native platform query failure shows picker", func(t *testing.T) {
		tb := newTestBackend()
		tb.devErr = errBoom
		tb.nativePicker = true
		c := newTestClient(t, tb, nil)

		err := c.ChangeRoute(context.Background())
		assert.NilErr(t, err)
		assert.DeepEqual(t, tb.gotPickerCalls(), 1)
	})
}

// TestToggleSpeakerReceiver asserts the toggle direction logic.
func TestToggleSpeakerReceiver(t *testing.T) {
	t.Parallel()

	spk := route.Device{ID: "spk", Type: route.DeviceSpeaker}
	rcv := route.Device{ID: "rcv", Type: route.DeviceReceiver}
	bt := route.Device{ID: "bt-1", Type: route.DeviceBluetooth}

	tests := []struct {
		name    string
		devs    []route.Device
		cur     *route.Device
		wantSet string
	}{{
		name:    "speaker toggles to listed receiver",
		devs:    []route.Device{spk, rcv},
		cur:     &spk,
		wantSet: "rcv",
	}, {
		name:    "receiver toggles to listed speaker",
		devs:    []route.Device{spk, rcv},
		cur:     &rcv,
		wantSet: "spk",
	}, {
		name:    "speaker without listed receiver targets reserved id",
		devs:    []route.Device{spk},
		cur:     &spk,
		wantSet: route.ReceiverDeviceID,
	}, {
		name:    "indeterminate targets first built-in",
		devs:    []route.Device{bt, rcv, spk},
		cur:     nil,
		wantSet: "rcv",
	}, {
		name:    "indeterminate without built-ins targets first device",
		devs:    []route.Device{bt},
		cur:     nil,
		wantSet: "bt-1",
	}, {
		name:    "external current targets first built-in",
		devs:    []route.Device{spk, bt},
		cur:     &bt,
		wantSet: "spk",
	}, {
		name:    "nothing available targets reserved speaker id",
		devs:    nil,
		cur:     nil,
		wantSet: route.SpeakerDeviceID,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tb := newTestBackend()
			tb.devs = tc.devs
			tb.cur = tc.cur
			c := newTestClient(t, tb, nil)

			c.ToggleSpeakerReceiver(context.Background())
			assert.DeepEqual(t, tb.gotSetCalls(), []string{tc.wantSet})
			assert.DeepEqual(t, tb.gotToggleCalls(), 0)
		})
	}
}

// TestEventFanout asserts that running the client fans backend state events
// out to subscribers, with derived added/removed/selection notifications.
func TestEventFanout(t *testing.T) {
	t.Parallel()

	tb := newTestBackend()
	c := newTestClient(t, tb, nil)

	stChan := make(chan route.State, 4)
	addedChan := make(chan []route.Device, 4)
	removedChan := make(chan []route.Device, 4)
	selChan := make(chan *route.Device, 4)
	c.Notifications().Register(OnRouteChangedNtfn(func(st route.State) {
		stChan <- st
	}))
	c.Notifications().Register(OnDevicesAddedNtfn(func(devs []route.Device) {
		addedChan <- devs
	}))
	c.Notifications().Register(OnDevicesRemovedNtfn(func(devs []route.Device) {
		removedChan <- devs
	}))
	c.Notifications().Register(OnSelectionChangedNtfn(func(_, new *route.Device) {
		selChan <- new
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	spk := route.Device{ID: "spk", Type: route.DeviceSpeaker}
	bt := route.Device{ID: "bt-1", Type: route.DeviceBluetooth}

	// Baseline snapshot.
	st1 := route.State{Devices: []route.Device{spk}, Selected: &spk}
	tb.events <- st1
	assert.ChanWrittenWithVal(t, stChan, st1)
	got := assert.ChanWritten(t, selChan)
	assert.DeepEqual(t, got, &spk)

	// A bluetooth device appears and gets selected.
	st2 := route.State{Devices: []route.Device{spk, bt}, Selected: &bt}
	tb.events <- st2
	assert.ChanWrittenWithVal(t, stChan, st2)
	assert.ChanWrittenWithVal(t, addedChan, []route.Device{bt})
	got = assert.ChanWritten(t, selChan)
	assert.DeepEqual(t, got, &bt)

	// The bluetooth device disappears.
	st3 := route.State{Devices: []route.Device{spk}, Selected: &spk}
	tb.events <- st3
	assert.ChanWrittenWithVal(t, stChan, st3)
	assert.ChanWrittenWithVal(t, removedChan, []route.Device{bt})

	// No removal notification was sent for the baseline.
	assert.ChanNotWritten(t, addedChan, 50*time.Millisecond)

	cancel()
	err := assert.ChanWritten(t, runErr)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestSlowSubscriberDoesNotBlockOthers asserts per-subscriber isolation: a
// stuck async handler does not delay delivery to other subscribers.
func TestSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	tb := newTestBackend()
	c := newTestClient(t, tb, nil)

	block := make(chan struct{})
	fastChan := make(chan route.State, 4)
	c.Notifications().Register(OnRouteChangedNtfn(func(st route.State) {
		<-block
	}))
	c.Notifications().Register(OnRouteChangedNtfn(func(st route.State) {
		fastChan <- st
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	st := route.State{Devices: []route.Device{{ID: "spk", Type: route.DeviceSpeaker}}}
	tb.events <- st
	assert.ChanWrittenWithVal(t, fastChan, st)
	close(block)
}
