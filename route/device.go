// Package route defines the value types shared by every layer of the
// audioroute module: audio output devices, immutable route state snapshots
// and the device filter modes, along with the normalization rules for raw
// platform payloads.
package route

// DeviceType is the category of an audio output endpoint.
type DeviceType string

const (
	DeviceSpeaker   DeviceType = "speaker"
	DeviceReceiver  DeviceType = "receiver"
	DeviceBluetooth DeviceType = "bluetooth"
	DeviceWired     DeviceType = "wired"
	DeviceUSB       DeviceType = "usb"
	DeviceCar       DeviceType = "car"
	DeviceAirplay   DeviceType = "airplay"
	DeviceUnknown   DeviceType = "unknown"
)

// Reserved ids for the built-in targets. These are used when switching to a
// built-in device and the device list does not otherwise disambiguate them.
const (
	SpeakerDeviceID  = "speaker"
	ReceiverDeviceID = "receiver"
)

// ParseDeviceType maps a wire string to a DeviceType. Unrecognized values map
// to DeviceUnknown.
func ParseDeviceType(s string) DeviceType {
	switch DeviceType(s) {
	case DeviceSpeaker, DeviceReceiver, DeviceBluetooth, DeviceWired,
		DeviceUSB, DeviceCar, DeviceAirplay:
		return DeviceType(s)
	default:
		return DeviceUnknown
	}
}

// IsBuiltIn returns whether this is one of the two built-in device categories
// (speaker or receiver).
func (dt DeviceType) IsBuiltIn() bool {
	return dt == DeviceSpeaker || dt == DeviceReceiver
}

// DisplayName returns the default English display name for the category.
func (dt DeviceType) DisplayName() string {
	switch dt {
	case DeviceSpeaker:
		return "Speaker"
	case DeviceReceiver:
		return "Receiver"
	case DeviceBluetooth:
		return "Bluetooth"
	case DeviceWired:
		return "Wired Headset"
	case DeviceUSB:
		return "USB"
	case DeviceCar:
		return "Car Audio"
	case DeviceAirplay:
		return "AirPlay"
	default:
		return "Unknown"
	}
}

// Device is one addressable audio output endpoint.
type Device struct {
	ID   string     `json:"id"`
	Type DeviceType `json:"type"`
}

// AllBuiltIn returns true when devs is non-empty and every device is one of
// the two built-in categories.
func AllBuiltIn(devs []Device) bool {
	if len(devs) == 0 {
		return false
	}
	for _, d := range devs {
		if !d.Type.IsBuiltIn() {
			return false
		}
	}
	return true
}

// FirstOfType returns the first device in devs with the given type.
func FirstOfType(devs []Device, dt DeviceType) (Device, bool) {
	for _, d := range devs {
		if d.Type == dt {
			return d, true
		}
	}
	return Device{}, false
}

// FirstBuiltIn returns the first device in devs with a built-in type.
func FirstBuiltIn(devs []Device) (Device, bool) {
	for _, d := range devs {
		if d.Type.IsBuiltIn() {
			return d, true
		}
	}
	return Device{}, false
}
