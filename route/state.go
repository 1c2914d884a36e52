package route

// State is an immutable snapshot of the audio route topology: the devices
// currently available for output and the one selected as the active route.
// A fresh State is built for every platform event; holders never mutate one.
type State struct {
	// Devices is the list of available devices, in the order the platform
	// reported them. The order carries no contractual meaning.
	Devices []Device `json:"availableDevices"`

	// Selected is the presently active device, or nil when the platform
	// could not determine one.
	Selected *Device `json:"selectedDevice,omitempty"`
}

// Equal returns whether two snapshots are structurally equal: same device
// list contents in the same order and the same selected device.
func (st State) Equal(other State) bool {
	if len(st.Devices) != len(other.Devices) {
		return false
	}
	for i := range st.Devices {
		if st.Devices[i] != other.Devices[i] {
			return false
		}
	}
	if (st.Selected == nil) != (other.Selected == nil) {
		return false
	}
	if st.Selected != nil && *st.Selected != *other.Selected {
		return false
	}
	return true
}

// HasExternal returns whether any available device is not one of the two
// built-in categories.
func (st State) HasExternal() bool {
	for _, d := range st.Devices {
		if !d.Type.IsBuiltIn() {
			return true
		}
	}
	return false
}
