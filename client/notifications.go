package client

import (
	"fmt"
	"sync"

	"github.com/companyzero/audioroute/route"
)

// Following are the notification types. Add new types at the bottom of this
// list, then add a notifyX() to NotificationManager and initialize a new
// container in NewNotificationManager().

const onRouteChangedNtfnType = "onRouteChanged"

// OnRouteChangedNtfn is the handler for route state changes. It is called
// with a fresh state snapshot for every change reported by the platform.
type OnRouteChangedNtfn func(route.State)

func (_ OnRouteChangedNtfn) typ() string { return onRouteChangedNtfnType }

const onDevicesAddedNtfnType = "onDevicesAdded"

// OnDevicesAddedNtfn is the handler for devices that became available since
// the previous route state.
type OnDevicesAddedNtfn func([]route.Device)

func (_ OnDevicesAddedNtfn) typ() string { return onDevicesAddedNtfnType }

const onDevicesRemovedNtfnType = "onDevicesRemoved"

// OnDevicesRemovedNtfn is the handler for devices that stopped being
// available since the previous route state.
type OnDevicesRemovedNtfn func([]route.Device)

func (_ OnDevicesRemovedNtfn) typ() string { return onDevicesRemovedNtfnType }

const onSelectionChangedNtfnType = "onSelectionChanged"

// OnSelectionChangedNtfn is the handler for changes to the active output
// device. Either device may be nil when the respective selection was
// indeterminate.
type OnSelectionChangedNtfn func(old, new *route.Device)

func (_ OnSelectionChangedNtfn) typ() string { return onSelectionChangedNtfnType }

// The following is used only in tests.

const onTestNtfnType = "testNtfnType"

type onTestNtfn func()

func (_ onTestNtfn) typ() string { return onTestNtfnType }

// Following is the generic notification code.

type NotificationRegistration struct {
	unreg func() bool
}

func (reg NotificationRegistration) Unregister() bool {
	return reg.unreg()
}

type NotificationHandler interface {
	typ() string
}

type handler[T any] struct {
	handler T
	async   bool
}

type handlersFor[T any] struct {
	mtx      sync.Mutex
	next     uint
	handlers map[uint]handler[T]
}

func (hn *handlersFor[T]) register(h T, async bool) NotificationRegistration {
	var id uint

	hn.mtx.Lock()
	id, hn.next = hn.next, hn.next+1
	if hn.handlers == nil {
		hn.handlers = make(map[uint]handler[T])
	}
	hn.handlers[id] = handler[T]{handler: h, async: async}
	registered := true
	hn.mtx.Unlock()

	return NotificationRegistration{
		unreg: func() bool {
			hn.mtx.Lock()
			res := registered
			if registered {
				delete(hn.handlers, id)
				registered = false
			}
			hn.mtx.Unlock()
			return res
		},
	}
}

func (hn *handlersFor[T]) visit(f func(T)) {
	hn.mtx.Lock()
	for _, h := range hn.handlers {
		if h.async {
			go f(h.handler)
		} else {
			f(h.handler)
		}
	}
	hn.mtx.Unlock()
}

func (hn *handlersFor[T]) Register(v interface{}, async bool) NotificationRegistration {
	if h, ok := v.(T); !ok {
		panic("wrong type")
	} else {
		return hn.register(h, async)
	}
}

type handlersRegistry interface {
	Register(v interface{}, async bool) NotificationRegistration
}

// NotificationManager manages handlers for client notifications. Handlers
// registered with Register() run on their own goroutine, so a slow or stuck
// subscriber never delays delivery to the others.
type NotificationManager struct {
	handlers map[string]handlersRegistry
}

func (nmgr *NotificationManager) register(handler NotificationHandler, async bool) NotificationRegistration {
	handlers := nmgr.handlers[handler.typ()]
	if handlers == nil {
		panic(fmt.Sprintf("forgot to init the handler type %T "+
			"in NewNotificationManager", handler))
	}

	return handlers.Register(handler, async)
}

func (nmgr *NotificationManager) Register(handler NotificationHandler) NotificationRegistration {
	return nmgr.register(handler, true)
}

func (nmgr *NotificationManager) RegisterSync(handler NotificationHandler) NotificationRegistration {
	return nmgr.register(handler, false)
}

// Following are the notifyX() calls (one for each type of notification).

func (nmgr *NotificationManager) notifyTest() {
	nmgr.handlers[onTestNtfnType].(*handlersFor[onTestNtfn]).
		visit(func(h onTestNtfn) { h() })
}

func (nmgr *NotificationManager) notifyRouteChanged(st route.State) {
	nmgr.handlers[onRouteChangedNtfnType].(*handlersFor[OnRouteChangedNtfn]).
		visit(func(h OnRouteChangedNtfn) { h(st) })
}

func (nmgr *NotificationManager) notifyDevicesAdded(devs []route.Device) {
	nmgr.handlers[onDevicesAddedNtfnType].(*handlersFor[OnDevicesAddedNtfn]).
		visit(func(h OnDevicesAddedNtfn) { h(devs) })
}

func (nmgr *NotificationManager) notifyDevicesRemoved(devs []route.Device) {
	nmgr.handlers[onDevicesRemovedNtfnType].(*handlersFor[OnDevicesRemovedNtfn]).
		visit(func(h OnDevicesRemovedNtfn) { h(devs) })
}

func (nmgr *NotificationManager) notifySelectionChanged(old, new *route.Device) {
	nmgr.handlers[onSelectionChangedNtfnType].(*handlersFor[OnSelectionChangedNtfn]).
		visit(func(h OnSelectionChangedNtfn) { h(old, new) })
}

func NewNotificationManager() *NotificationManager {
	return &NotificationManager{
		handlers: map[string]handlersRegistry{
			onTestNtfnType:             &handlersFor[onTestNtfn]{},
			onRouteChangedNtfnType:     &handlersFor[OnRouteChangedNtfn]{},
			onDevicesAddedNtfnType:     &handlersFor[OnDevicesAddedNtfn]{},
			onDevicesRemovedNtfnType:   &handlersFor[OnDevicesRemovedNtfn]{},
			onSelectionChangedNtfnType: &handlersFor[OnSelectionChangedNtfn]{},
		},
	}
}
