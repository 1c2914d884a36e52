package route

import (
	"testing"

	"github.com/companyzero/audioroute/internal/assert"
)

// TestParseDeviceType tests wire strings map to the right categories.
func TestParseDeviceType(t *testing.T) {
	tests := []struct {
		in   string
		want DeviceType
	}{{
		in:   "speaker",
		want: DeviceSpeaker,
	}, {
		in:   "receiver",
		want: DeviceReceiver,
	}, {
		in:   "bluetooth",
		want: DeviceBluetooth,
	}, {
		in:   "wired",
		want: DeviceWired,
	}, {
		in:   "usb",
		want: DeviceUSB,
	}, {
		in:   "car",
		want: DeviceCar,
	}, {
		in:   "airplay",
		want: DeviceAirplay,
	}, {
		in:   "", // Empty string
		want: DeviceUnknown,
	}, {
		in:   "SPEAKER", // Case sensitive
		want: DeviceUnknown,
	}, {
		in:   "quadraphonic", // Unrecognized
		want: DeviceUnknown,
	}}

	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			assert.DeepEqual(t, ParseDeviceType(test.in), test.want)
		})
	}
}

// TestDeviceTypeIsBuiltIn tests only speaker and receiver count as built-in.
func TestDeviceTypeIsBuiltIn(t *testing.T) {
	builtin := []DeviceType{DeviceSpeaker, DeviceReceiver}
	external := []DeviceType{DeviceBluetooth, DeviceWired, DeviceUSB,
		DeviceCar, DeviceAirplay, DeviceUnknown}

	for _, dt := range builtin {
		assert.BoolIs(t, dt.IsBuiltIn(), true)
	}
	for _, dt := range external {
		assert.BoolIs(t, dt.IsBuiltIn(), false)
	}
}

// TestDisplayNames tests every category has a non-empty default English name.
func TestDisplayNames(t *testing.T) {
	all := []DeviceType{DeviceSpeaker, DeviceReceiver, DeviceBluetooth,
		DeviceWired, DeviceUSB, DeviceCar, DeviceAirplay, DeviceUnknown}
	for _, dt := range all {
		if dt.DisplayName() == "" {
			t.Fatalf("no display name for %q", dt)
		}
	}
}

// TestParseFilterMode tests preset names parse into the right modes.
func TestParseFilterMode(t *testing.T) {
	tests := []struct {
		in      string
		want    FilterMode
		wantErr bool
	}{{
		in:   "communication",
		want: FilterCommunication,
	}, {
		in:   "", // Empty defaults to communication
		want: FilterCommunication,
	}, {
		in:   "media",
		want: FilterMedia,
	}, {
		in:   "all",
		want: FilterAll,
	}, {
		in:      "everything", // Unrecognized
		wantErr: true,
	}}

	for _, test := range tests {
		t.Run(test.in, func(t *testing.T) {
			got, err := ParseFilterMode(test.in)
			if test.wantErr {
				assert.NonNilErr(t, err)
				return
			}
			assert.NilErr(t, err)
			assert.DeepEqual(t, got, test.want)
		})
	}
}

// TestStateEqual tests structural equality of snapshots.
func TestStateEqual(t *testing.T) {
	spk := Device{ID: "spk", Type: DeviceSpeaker}
	rcv := Device{ID: "rcv", Type: DeviceReceiver}
	bt := Device{ID: "bt-1", Type: DeviceBluetooth}

	tests := []struct {
		name string
		a, b State
		want bool
	}{{
		name: "both empty",
		want: true,
	}, {
		name: "same devices and selection",
		a:    State{Devices: []Device{spk, rcv}, Selected: &spk},
		b:    State{Devices: []Device{spk, rcv}, Selected: &spk},
		want: true,
	}, {
		name: "different order",
		a:    State{Devices: []Device{spk, rcv}},
		b:    State{Devices: []Device{rcv, spk}},
		want: false,
	}, {
		name: "different device count",
		a:    State{Devices: []Device{spk, rcv, bt}},
		b:    State{Devices: []Device{spk, rcv}},
		want: false,
	}, {
		name: "different selection",
		a:    State{Devices: []Device{spk, rcv}, Selected: &spk},
		b:    State{Devices: []Device{spk, rcv}, Selected: &rcv},
		want: false,
	}, {
		name: "nil vs non-nil selection",
		a:    State{Devices: []Device{spk}},
		b:    State{Devices: []Device{spk}, Selected: &spk},
		want: false,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.BoolIs(t, test.a.Equal(test.b), test.want)
			assert.BoolIs(t, test.b.Equal(test.a), test.want)
		})
	}
}

// TestStateHasExternal tests external device detection.
func TestStateHasExternal(t *testing.T) {
	spk := Device{ID: "spk", Type: DeviceSpeaker}
	rcv := Device{ID: "rcv", Type: DeviceReceiver}
	bt := Device{ID: "bt-1", Type: DeviceBluetooth}

	assert.BoolIs(t, State{}.HasExternal(), false)
	assert.BoolIs(t, State{Devices: []Device{spk, rcv}}.HasExternal(), false)
	assert.BoolIs(t, State{Devices: []Device{spk, rcv, bt}}.HasExternal(), true)
}

// TestAllBuiltIn tests the decision helper used by the smart route change.
func TestAllBuiltIn(t *testing.T) {
	spk := Device{ID: "spk", Type: DeviceSpeaker}
	rcv := Device{ID: "rcv", Type: DeviceReceiver}
	bt := Device{ID: "bt-1", Type: DeviceBluetooth}

	tests := []struct {
		name string
		devs []Device
		want bool
	}{{
		name: "empty list",
		devs: nil,
		want: false,
	}, {
		name: "only builtins",
		devs: []Device{spk, rcv},
		want: true,
	}, {
		name: "single builtin",
		devs: []Device{rcv},
		want: true,
	}, {
		name: "builtin plus bluetooth",
		devs: []Device{spk, rcv, bt},
		want: false,
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.BoolIs(t, AllBuiltIn(test.devs), test.want)
		})
	}
}

// TestFirstOfType tests type lookup helpers.
func TestFirstOfType(t *testing.T) {
	devs := []Device{
		{ID: "bt-1", Type: DeviceBluetooth},
		{ID: "rcv", Type: DeviceReceiver},
		{ID: "spk", Type: DeviceSpeaker},
	}

	got, ok := FirstOfType(devs, DeviceReceiver)
	assert.BoolIs(t, ok, true)
	assert.DeepEqual(t, got.ID, "rcv")

	_, ok = FirstOfType(devs, DeviceUSB)
	assert.BoolIs(t, ok, false)

	got, ok = FirstBuiltIn(devs)
	assert.BoolIs(t, ok, true)
	assert.DeepEqual(t, got.ID, "rcv")

	_, ok = FirstBuiltIn(nil)
	assert.BoolIs(t, ok, false)
}
