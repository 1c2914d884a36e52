package golib

import (
	"encoding/json"
	"fmt"
	"time"
)

type CmdType uint32

const (
	CTUnknown               CmdType = 0x00
	CTInitRouter                    = 0x01
	CTShowAudioRoutePicker          = 0x02
	CTGetAvailableDevices           = 0x03
	CTSetAudioDevice                = 0x04
	CTGetCurrentDevice              = 0x05
	CTHasExternalDevices            = 0x06
	CTToggleSpeakerReceiver         = 0x07
	CTChangeAudioRoute              = 0x08
	CTGetRouteState                 = 0x09
	CTPickerResult                  = 0x0a
	CTCreateLockFile                = 0x0b
	CTCloseLockFile                 = 0x0c
	CTStopRouter                    = 0x0d

	NTRouteStateChanged = 0x1001
	NTNOP               = 0x1002
	NTLogLine           = 0x1003
	NTShowPicker        = 0x1004
	NTRouterStopped     = 0x1005
)

// String returns the method name of the command type as used on the wire.
func (ct CmdType) String() string {
	switch ct {
	case CTInitRouter:
		return "initRouter"
	case CTShowAudioRoutePicker:
		return "showAudioRoutePicker"
	case CTGetAvailableDevices:
		return "getAvailableDevices"
	case CTSetAudioDevice:
		return "setAudioDevice"
	case CTGetCurrentDevice:
		return "getCurrentDevice"
	case CTHasExternalDevices:
		return "hasExternalDevices"
	case CTToggleSpeakerReceiver:
		return "toggleSpeakerReceiver"
	case CTChangeAudioRoute:
		return "changeAudioRoute"
	case CTGetRouteState:
		return "getRouteState"
	case CTPickerResult:
		return "pickerResult"
	case CTCreateLockFile:
		return "createLockFile"
	case CTCloseLockFile:
		return "closeLockFile"
	case CTStopRouter:
		return "stopRouter"
	case NTRouteStateChanged:
		return "routeStateChanged"
	case NTNOP:
		return "nop"
	case NTLogLine:
		return "logLine"
	case NTShowPicker:
		return "showPicker"
	case NTRouterStopped:
		return "routerStopped"
	default:
		return fmt.Sprintf("CmdType(%#x)", uint32(ct))
	}
}

type cmd struct {
	Type         CmdType
	ID           uint32
	RouterHandle uint32
	Payload      []byte
}

func (cmd *cmd) decode(to interface{}) error {
	return json.Unmarshal(cmd.Payload, to)
}

type CmdResult struct {
	ID      uint32
	Type    CmdType
	Err     error
	Payload []byte
}

type CmdResultLoopCB interface {
	F(*CmdResult)
}

var cmdResultChan = make(chan *CmdResult)

func call(cmd *cmd) *CmdResult {
	var v interface{}
	var err error

	decode := func(to interface{}) bool {
		err = cmd.decode(to)
		return err == nil
	}

	// Handle calls that do not need a router.
	switch cmd.Type {
	case CTInitRouter:
		var args initRouter
		if decode(&args) {
			err = handleInitRouter(cmd.RouterHandle, args)
		}

	case CTCreateLockFile:
		var args string
		decode(&args)
		err = handleCreateLockFile(args)

	case CTCloseLockFile:
		var args string
		decode(&args)
		err = handleCloseLockFile(args)

	default:
		// Calls that need a router. Figure out the router.
		cmtx.Lock()
		var router *routerCtx
		if cs != nil {
			router = cs[cmd.RouterHandle]
		}
		cmtx.Unlock()

		if router == nil {
			err = fmt.Errorf("unknown router handle %d", cmd.RouterHandle)
		} else {
			v, err = handleRouterCmd(router, cmd)
		}
	}

	var resPayload []byte
	if err == nil {
		resPayload, err = json.Marshal(v)
	}

	return &CmdResult{ID: cmd.ID, Err: err, Payload: resPayload}
}

func AsyncCall(typ CmdType, id, routerHandle uint32, payload []byte) {
	cmd := &cmd{
		Type:         typ,
		ID:           id,
		RouterHandle: routerHandle,
		Payload:      payload,
	}
	go func() { cmdResultChan <- call(cmd) }()
}

func notify(typ CmdType, payload interface{}, err error) {
	var resPayload []byte
	if err == nil {
		resPayload, err = json.Marshal(payload)
	}

	r := &CmdResult{Type: typ, Err: err, Payload: resPayload}
	cmdResultChan <- r
}

func NextCmdResult() *CmdResult {
	select {
	case r := <-cmdResultChan:
		return r
	case <-time.After(time.Second): // Timeout.
		return &CmdResult{Type: NTNOP, Payload: []byte{}}
	}
}

func CmdResultLoop(cb CmdResultLoopCB) {
	go func() {
		for {
			cb.F(<-cmdResultChan)
		}
	}()
}
