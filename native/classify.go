package native

import (
	"strings"

	"github.com/companyzero/audioroute/route"
)

// classifyDeviceName maps a platform device name to a route category. The
// platform reports free-form names, so this relies on the naming conventions
// of the common drivers. Order matters: more specific transports are checked
// before generic ones ("USB Headset" is usb, not wired).
func classifyDeviceName(name string) route.DeviceType {
	n := strings.ToLower(name)

	switch {
	case strings.Contains(n, "airplay"):
		return route.DeviceAirplay
	case strings.Contains(n, "car"):
		return route.DeviceCar
	case strings.Contains(n, "bluetooth"),
		strings.Contains(n, "airpods"),
		strings.Contains(n, "buds"),
		strings.Contains(n, "a2dp"),
		strings.Contains(n, "hands-free"):
		return route.DeviceBluetooth
	case strings.Contains(n, "usb"):
		return route.DeviceUSB
	case strings.Contains(n, "headphone"),
		strings.Contains(n, "headset"),
		strings.Contains(n, "wired"):
		return route.DeviceWired
	case strings.Contains(n, "earpiece"),
		strings.Contains(n, "receiver"),
		strings.Contains(n, "handset"):
		return route.DeviceReceiver
	case strings.Contains(n, "speaker"),
		strings.Contains(n, "built-in"),
		strings.Contains(n, "internal"):
		return route.DeviceSpeaker
	default:
		return route.DeviceUnknown
	}
}

// filterDevices applies a filter mode to a device list. The communication
// mode excludes categories unsuitable for two-way call audio; media and all
// return the full list.
func filterDevices(devs []route.Device, mode route.FilterMode) []route.Device {
	if mode != route.FilterCommunication {
		return devs
	}

	res := make([]route.Device, 0, len(devs))
	for _, d := range devs {
		switch d.Type {
		case route.DeviceAirplay, route.DeviceCar:
			// Playback-only transports.
		default:
			res = append(res, d)
		}
	}
	return res
}

// resolveTargetID resolves a requested switch target against the current
// device list. The reserved built-in ids match the first device of their
// category when no device carries the literal id.
func resolveTargetID(devs []route.Device, id string) (route.Device, bool) {
	for _, d := range devs {
		if d.ID == id {
			return d, true
		}
	}

	switch id {
	case route.SpeakerDeviceID:
		return route.FirstOfType(devs, route.DeviceSpeaker)
	case route.ReceiverDeviceID:
		return route.FirstOfType(devs, route.DeviceReceiver)
	}

	return route.Device{}, false
}
