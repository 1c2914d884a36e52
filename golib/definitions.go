package golib

import (
	"github.com/companyzero/audioroute/route"
)

type initRouter struct {
	Filter         int    `json:"filter"`
	LogFile        string `json:"log_file"`
	DebugLevel     string `json:"debug_level"`
	WantsLogNtfns  bool   `json:"wants_log_ntfns"`
	PollIntervalMs int    `json:"poll_interval_ms"`
	VerifyDelayMs  int    `json:"verify_delay_ms"`
	Chime          bool   `json:"chime"`
	PickerTitle    string `json:"picker_title"`
}

type setAudioDeviceArgs struct {
	DeviceID string `json:"deviceId"`
}

// pickerRequest asks the embedding UI to display a device selection dialog
// and reply with a pickerResult command.
type pickerRequest struct {
	Title      string         `json:"title"`
	Devices    []route.Device `json:"availableDevices"`
	SelectedID string         `json:"selectedDeviceId,omitempty"`
}

// pickerResult is the UI's reply to a pickerRequest. Dismissed means the
// user closed the dialog without choosing.
type pickerResult struct {
	DeviceID  string `json:"deviceId"`
	Dismissed bool   `json:"dismissed"`
}
