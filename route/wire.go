package route

import "encoding/json"

// The functions below normalize the raw payloads exchanged with the native
// collaborator. Malformed entries are always skipped instead of failing the
// whole payload, so a single bad device never drops an otherwise usable
// event.

// ParseDeviceMap normalizes one raw device map. The map is well formed when
// it carries a non-empty string "id"; a missing or unrecognized "type" maps
// to DeviceUnknown.
func ParseDeviceMap(m map[string]interface{}) (Device, bool) {
	id, ok := m["id"].(string)
	if !ok || id == "" {
		return Device{}, false
	}

	var dt DeviceType
	if typStr, ok := m["type"].(string); ok {
		dt = ParseDeviceType(typStr)
	} else {
		dt = DeviceUnknown
	}

	return Device{ID: id, Type: dt}, true
}

// parseDeviceList normalizes a raw device list. The second return is false
// when v is not a list at all. Malformed entries are excluded from the
// result.
func parseDeviceList(v interface{}) ([]Device, bool) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, false
	}

	res := make([]Device, 0, len(list))
	for _, entry := range list {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		dev, ok := ParseDeviceMap(m)
		if !ok {
			continue
		}
		res = append(res, dev)
	}
	return res, true
}

// ParseStateMap normalizes a raw state-change payload into a State. The
// second return is false when neither the "availableDevices" nor the
// "selectedDevice" field is parseable, in which case the event should be
// dropped.
func ParseStateMap(m map[string]interface{}) (State, bool) {
	var st State
	var anyParsed bool

	if v, ok := m["availableDevices"]; ok {
		if devs, ok := parseDeviceList(v); ok {
			st.Devices = devs
			anyParsed = true
		}
	}

	if v, ok := m["selectedDevice"]; ok {
		if selMap, ok := v.(map[string]interface{}); ok {
			if dev, ok := ParseDeviceMap(selMap); ok {
				st.Selected = &dev
				anyParsed = true
			}
		}
	}

	return st, anyParsed
}

// DecodeState decodes a JSON-encoded state-change payload. The second return
// is false when the payload is not a JSON object or carries no parseable
// field.
func DecodeState(data []byte) (State, bool) {
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return State{}, false
	}
	return ParseStateMap(m)
}
