package routerpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/companyzero/audioroute/native"
	"github.com/companyzero/audioroute/route"
	"github.com/decred/slog"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrClientNotRunning is returned by calls made before Run connected or
// after the connection was lost.
var ErrClientNotRunning = errors.New("control client is not running")

type clientConfig struct {
	log slog.Logger
}

// ClientOption is a config option for NewClient.
type ClientOption func(*clientConfig)

// WithClientLog sets the client logger.
func WithClientLog(log slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.log = log
	}
}

// Client dials a control server and exposes the remote route controller. It
// implements native.Backend, so a local controller or UI can run over a
// remote daemon the same way it runs over the local platform.
type Client struct {
	url string
	log slog.Logger

	connMtx  sync.Mutex
	conn     *websocket.Conn
	writeMtx sync.Mutex

	nextID  atomic.Uint64
	pending *xsync.MapOf[uint64, chan *message]

	events chan route.State

	// droppedEvents counts malformed state events that were discarded.
	droppedEvents atomic.Uint64
}

// NewClient creates a control client for the server at url
// (e.g. "ws://127.0.0.1:7345/").
func NewClient(url string, opts ...ClientOption) *Client {
	cfg := clientConfig{log: slog.Disabled}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Client{
		url:     url,
		log:     cfg.log,
		pending: xsync.NewMapOf[uint64, chan *message](),
		events:  make(chan route.State, 16),
	}
}

// Run dials the server and processes incoming frames until ctx is canceled
// or the connection fails.
func (c *Client) Run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("unable to dial control server: %w", err)
	}

	c.connMtx.Lock()
	c.conn = conn
	c.connMtx.Unlock()
	c.log.Infof("Connected to control server %s", c.url)

	defer func() {
		c.connMtx.Lock()
		c.conn = nil
		c.connMtx.Unlock()
		conn.Close()

		// Fail any calls still in flight.
		c.pending.Range(func(id uint64, ch chan *message) bool {
			c.pending.Delete(id)
			close(ch)
			return true
		})
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("control connection failed: %w", err)
		}

		switch {
		case msg.ID != 0:
			if ch, loaded := c.pending.LoadAndDelete(msg.ID); loaded {
				ch <- &msg
			} else {
				c.log.Warnf("Reply to unknown request id %d", msg.ID)
			}

		case msg.Event == EventRouteStateChanged:
			c.handleStateEvent(msg.Payload)

		case msg.Event != "":
			c.log.Debugf("Ignoring unknown event %q", msg.Event)
		}
	}
}

// handleStateEvent normalizes a pushed state payload and delivers it.
// Malformed payloads are counted and dropped, never delivered as errors.
func (c *Client) handleStateEvent(payload []byte) {
	st, ok := route.DecodeState(payload)
	if !ok {
		c.droppedEvents.Add(1)
		c.log.Warnf("Dropping malformed state event (%d dropped so far)",
			c.droppedEvents.Load())
		return
	}
	select {
	case c.events <- st:
	default:
		c.log.Warnf("State event consumer lagging; dropping update")
	}
}

// DroppedEvents returns how many malformed state events were discarded.
func (c *Client) DroppedEvents() uint64 {
	return c.droppedEvents.Load()
}

// request performs one call and decodes its result into res when res is
// non-nil.
func (c *Client) request(ctx context.Context, method string, params, res interface{}) error {
	c.connMtx.Lock()
	conn := c.conn
	c.connMtx.Unlock()
	if conn == nil {
		return ErrClientNotRunning
	}

	var rawParams json.RawMessage
	if params != nil {
		var err error
		rawParams, err = json.Marshal(params)
		if err != nil {
			return err
		}
	}

	id := c.nextID.Add(1)
	ch := make(chan *message, 1)
	c.pending.Store(id, ch)
	defer c.pending.Delete(id)

	c.writeMtx.Lock()
	err := conn.WriteJSON(request{ID: id, Method: method, Params: rawParams})
	c.writeMtx.Unlock()
	if err != nil {
		return fmt.Errorf("unable to send %s: %w", method, err)
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return ErrClientNotRunning
		}
		if msg.Error != nil {
			return msg.Error
		}
		if res != nil {
			return json.Unmarshal(msg.Result, res)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Devices is part of the native.Backend interface.
func (c *Client) Devices(ctx context.Context, filter route.FilterMode) ([]route.Device, error) {
	var devs []route.Device
	err := c.request(ctx, MethodGetAvailableDevices,
		getAvailableDevicesParams{FilterMode: int(filter)}, &devs)
	return devs, err
}

// CurrentDevice is part of the native.Backend interface.
func (c *Client) CurrentDevice(ctx context.Context) (*route.Device, error) {
	var dev *route.Device
	err := c.request(ctx, MethodGetCurrentDevice, nil, &dev)
	return dev, err
}

// SetDevice is part of the native.Backend interface.
func (c *Client) SetDevice(ctx context.Context, id string) error {
	return c.request(ctx, MethodSetAudioDevice,
		setAudioDeviceParams{DeviceID: id}, nil)
}

// Toggle is part of the native.Backend interface.
func (c *Client) Toggle(ctx context.Context) error {
	return c.request(ctx, MethodToggleSpeakerReceiver, nil, nil)
}

// HasNativePicker is part of the native.Backend interface. Remote pickers
// are driven by the daemon, not this client.
func (c *Client) HasNativePicker() bool { return false }

// ShowNativePicker is part of the native.Backend interface.
func (c *Client) ShowNativePicker(_ context.Context) error {
	return native.ErrNoNativePicker
}

// Events is part of the native.Backend interface.
func (c *Client) Events() <-chan route.State {
	return c.events
}

// Close is part of the native.Backend interface.
func (c *Client) Close() error {
	c.connMtx.Lock()
	conn := c.conn
	c.connMtx.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// HasExternalDevices queries the daemon for non built-in devices.
func (c *Client) HasExternalDevices(ctx context.Context) (bool, error) {
	var has bool
	err := c.request(ctx, MethodHasExternalDevices, nil, &has)
	return has, err
}

// RouteState returns the daemon's last route state snapshot.
func (c *Client) RouteState(ctx context.Context) (route.State, error) {
	var st route.State
	err := c.request(ctx, MethodGetRouteState, nil, &st)
	return st, err
}

// ChangeRoute asks the daemon to perform a smart route change.
func (c *Client) ChangeRoute(ctx context.Context) error {
	return c.request(ctx, MethodChangeAudioRoute, nil, nil)
}

// ShowRoutePicker asks the daemon to present its route picker.
func (c *Client) ShowRoutePicker(ctx context.Context) error {
	return c.request(ctx, MethodShowAudioRoutePicker, nil, nil)
}
