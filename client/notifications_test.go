package client

import (
	"testing"
	"time"

	"github.com/companyzero/audioroute/route"
)

// TestNotificationManager tests the behavior of the NotificationManager.
func TestNotificationManager(t *testing.T) {
	t.Parallel()

	nmgr := NewNotificationManager()

	var called bool
	var calledChan = make(chan struct{})
	fSync := func() {
		called = true
	}
	fAsync := func() {
		calledChan <- struct{}{}
	}

	assertCalledSync := func(want bool) {
		t.Helper()
		if want != called {
			t.Fatalf("unexpected called sync: got %v, want %v",
				called, want)
		}
		called = false
	}
	assertCalledAsync := func(want bool) {
		t.Helper()
		if want {
			select {
			case <-calledChan:
			case <-time.After(time.Second):
				t.Fatal("timeout waiting for calledChan")
			}
		} else {
			select {
			case <-calledChan:
				t.Fatal("unexpected write to calledChan")
			case <-time.After(time.Millisecond * 100):
			}

		}
	}
	assertUnregister := func(reg NotificationRegistration, want bool) {
		t.Helper()
		got := reg.Unregister()
		if got != want {
			t.Fatalf("unexpected unregister() result: got %v, want %v",
				got, want)
		}
	}

	// No one registered yet.
	nmgr.notifyRouteChanged(route.State{})
	assertCalledSync(false)
	assertCalledAsync(false)

	// Register one sync and one async calls.
	regSync := nmgr.RegisterSync(onTestNtfn(fSync))
	regAsync := nmgr.Register(onTestNtfn(fAsync))

	// Both called after registration.
	nmgr.notifyTest()
	assertCalledSync(true)
	assertCalledAsync(true)

	// Unregister only sync and call.
	assertUnregister(regSync, true)
	nmgr.notifyTest()
	assertCalledSync(false)
	assertCalledAsync(true)

	// Unregister async and call.
	assertUnregister(regAsync, true)
	nmgr.notifyTest()
	assertCalledSync(false)
	assertCalledAsync(false)

	// Both already unregistered.
	assertUnregister(regSync, false)
	assertUnregister(regAsync, false)
}

// TestNotificationTypes exercises every public notification type through its
// notifyX call.
func TestNotificationTypes(t *testing.T) {
	t.Parallel()

	nmgr := NewNotificationManager()

	spk := route.Device{ID: "spk", Type: route.DeviceSpeaker}
	bt := route.Device{ID: "bt-1", Type: route.DeviceBluetooth}

	var gotState route.State
	var gotAdded, gotRemoved []route.Device
	var gotOld, gotNew *route.Device
	nmgr.RegisterSync(OnRouteChangedNtfn(func(st route.State) {
		gotState = st
	}))
	nmgr.RegisterSync(OnDevicesAddedNtfn(func(devs []route.Device) {
		gotAdded = devs
	}))
	nmgr.RegisterSync(OnDevicesRemovedNtfn(func(devs []route.Device) {
		gotRemoved = devs
	}))
	nmgr.RegisterSync(OnSelectionChangedNtfn(func(old, new *route.Device) {
		gotOld, gotNew = old, new
	}))

	st := route.State{Devices: []route.Device{spk, bt}, Selected: &bt}
	nmgr.notifyRouteChanged(st)
	if !gotState.Equal(st) {
		t.Fatalf("unexpected state: got %v, want %v", gotState, st)
	}

	nmgr.notifyDevicesAdded([]route.Device{bt})
	if len(gotAdded) != 1 || gotAdded[0] != bt {
		t.Fatalf("unexpected added devices: %v", gotAdded)
	}

	nmgr.notifyDevicesRemoved([]route.Device{bt})
	if len(gotRemoved) != 1 || gotRemoved[0] != bt {
		t.Fatalf("unexpected removed devices: %v", gotRemoved)
	}

	nmgr.notifySelectionChanged(&spk, &bt)
	if gotOld == nil || *gotOld != spk || gotNew == nil || *gotNew != bt {
		t.Fatalf("unexpected selection change: %v -> %v", gotOld, gotNew)
	}
}
