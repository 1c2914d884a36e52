// Package routerpc implements a websocket control protocol for a remote
// route controller. Requests are JSON objects {id, method, params}, replies
// are {id, result, error} and the server pushes {event, payload} messages
// for every route state change. The method names mirror the in-process
// command surface, so a remote caller sees the same operations as an
// embedding UI.
package routerpc

import (
	"encoding/json"
	"fmt"
)

// Methods accepted by the server.
const (
	MethodShowAudioRoutePicker  = "showAudioRoutePicker"
	MethodGetAvailableDevices   = "getAvailableDevices"
	MethodSetAudioDevice        = "setAudioDevice"
	MethodGetCurrentDevice      = "getCurrentDevice"
	MethodHasExternalDevices    = "hasExternalDevices"
	MethodToggleSpeakerReceiver = "toggleSpeakerReceiver"
	MethodChangeAudioRoute      = "changeAudioRoute"
	MethodGetRouteState         = "getRouteState"
)

// Events pushed by the server.
const (
	EventRouteStateChanged = "routeStateChanged"
)

// Error is a protocol-level error carried in a reply.
type Error struct {
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// request is a client-to-server call.
type request struct {
	ID     uint64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// message is a server-to-client frame: either a reply (non-zero ID) or an
// event push (non-empty Event).
type message struct {
	ID     uint64          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`

	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type getAvailableDevicesParams struct {
	FilterMode int `json:"filterMode"`
}

type setAudioDeviceParams struct {
	DeviceID string `json:"deviceId"`
}

func errUnknownMethod(method string) *Error {
	return &Error{Message: fmt.Sprintf("unknown method %q", method)}
}
