package routerpc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/companyzero/audioroute/client"
	"github.com/companyzero/audioroute/route"
	"github.com/decred/slog"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/errgroup"
)

const (
	// defaultSendQueueSize bounds the per-peer outbound queue. Peers
	// that stop draining it are disconnected instead of blocking
	// delivery to everyone else.
	defaultSendQueueSize = 32

	writeTimeout = 10 * time.Second
)

// serverPeer is one connected control client.
type serverPeer struct {
	id   uint64
	conn *websocket.Conn
	send chan *message
	quit chan struct{}

	// dropped is set once the peer is being torn down for a full queue,
	// so that it is only counted once.
	dropped atomic.Bool
}

// queue enqueues msg for delivery. Returns false when the peer's queue is
// full, in which case the caller must disconnect it.
func (p *serverPeer) queue(msg *message) bool {
	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

type serverConfig struct {
	listenAddr    string
	log           slog.Logger
	sendQueueSize int
}

// ServerOption is a config option for NewServer.
type ServerOption func(*serverConfig)

// WithListenAddr sets the address Run listens on.
func WithListenAddr(addr string) ServerOption {
	return func(cfg *serverConfig) {
		cfg.listenAddr = addr
	}
}

// WithServerLog sets the server logger.
func WithServerLog(log slog.Logger) ServerOption {
	return func(cfg *serverConfig) {
		cfg.log = log
	}
}

// WithSendQueueSize overrides the per-peer outbound queue size.
func WithSendQueueSize(n int) ServerOption {
	return func(cfg *serverConfig) {
		if n > 0 {
			cfg.sendQueueSize = n
		}
	}
}

// Server exposes a route controller over the websocket control protocol.
type Server struct {
	cfg   serverConfig
	c     *client.Client
	log   slog.Logger
	stats *stats

	upgrader websocket.Upgrader

	nextPeerID atomic.Uint64
	peers      *xsync.MapOf[uint64, *serverPeer]
}

// NewServer creates a control server over c.
func NewServer(c *client.Client, opts ...ServerOption) *Server {
	cfg := serverConfig{
		listenAddr:    "127.0.0.1:7345",
		log:           slog.Disabled,
		sendQueueSize: defaultSendQueueSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Server{
		cfg:   cfg,
		c:     c,
		log:   cfg.log,
		stats: newStats(),
		peers: xsync.NewMapOf[uint64, *serverPeer](),
	}
}

// Registry returns the metrics registry of this server, for exposition by
// the embedding process.
func (s *Server) Registry() *prometheus.Registry {
	return s.stats.reg
}

// ServeHTTP upgrades the request to a websocket control session. The server
// itself is the handler, so it can be mounted on any mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debugf("Unable to upgrade connection from %s: %v",
			r.RemoteAddr, err)
		return
	}

	peer := &serverPeer{
		id:   s.nextPeerID.Add(1),
		conn: conn,
		send: make(chan *message, s.cfg.sendQueueSize),
		quit: make(chan struct{}),
	}
	s.peers.Store(peer.id, peer)
	s.stats.peers.Inc()
	s.log.Infof("Peer %d connected from %s", peer.id, r.RemoteAddr)

	go s.writeLoop(peer)
	s.readLoop(r.Context(), peer)

	s.removePeer(peer)
	s.log.Infof("Peer %d disconnected", peer.id)
}

func (s *Server) removePeer(peer *serverPeer) {
	if _, loaded := s.peers.LoadAndDelete(peer.id); loaded {
		s.stats.peers.Dec()
		close(peer.quit)
		peer.conn.Close()
	}
}

// dropPeer disconnects a peer that stopped draining its queue.
func (s *Server) dropPeer(peer *serverPeer) {
	if peer.dropped.CompareAndSwap(false, true) {
		s.stats.droppedPeers.Inc()
		s.log.Warnf("Peer %d not draining send queue; disconnecting", peer.id)
	}
	s.removePeer(peer)
}

// writeLoop drains the peer's send queue onto the connection.
func (s *Server) writeLoop(peer *serverPeer) {
	for {
		select {
		case msg := <-peer.send:
			peer.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := peer.conn.WriteJSON(msg); err != nil {
				s.log.Debugf("Write to peer %d failed: %v", peer.id, err)
				s.removePeer(peer)
				return
			}
		case <-peer.quit:
			return
		}
	}
}

// readLoop decodes requests from the peer until the connection closes.
func (s *Server) readLoop(ctx context.Context, peer *serverPeer) {
	for {
		var req request
		if err := peer.conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure,
				websocket.CloseGoingAway) {
				s.log.Debugf("Read from peer %d failed: %v", peer.id, err)
			}
			return
		}

		resp := s.handleRequest(ctx, &req)
		if !peer.queue(resp) {
			s.dropPeer(peer)
			return
		}
	}
}

// handleRequest dispatches one request to the route controller.
func (s *Server) handleRequest(ctx context.Context, req *request) *message {
	s.log.Debugf("Handling %s (id %d)", req.Method, req.ID)
	s.stats.requests.WithLabelValues(req.Method).Inc()

	var res interface{}
	var err error

	switch req.Method {
	case MethodShowAudioRoutePicker:
		err = s.c.ShowRoutePicker(ctx)

	case MethodGetAvailableDevices:
		var params getAvailableDevicesParams
		params.FilterMode = -1
		if len(req.Params) > 0 {
			err = json.Unmarshal(req.Params, &params)
		}
		if err == nil {
			filter := route.FilterMode(params.FilterMode)
			if !filter.Valid() {
				// No explicit filter means the controller's
				// configured one.
				res = s.c.AvailableDevices(ctx)
			} else {
				res = s.c.Bridge().AvailableDevices(ctx, filter)
			}
		}

	case MethodSetAudioDevice:
		var params setAudioDeviceParams
		if err = json.Unmarshal(req.Params, &params); err == nil {
			s.c.SetAudioDevice(ctx, params.DeviceID)
		}

	case MethodGetCurrentDevice:
		res = s.c.CurrentDevice(ctx)

	case MethodHasExternalDevices:
		res = s.c.HasExternalDevices(ctx)

	case MethodToggleSpeakerReceiver:
		s.c.ToggleSpeakerReceiver(ctx)

	case MethodChangeAudioRoute:
		err = s.c.ChangeRoute(ctx)

	case MethodGetRouteState:
		res = s.c.LastState()

	default:
		s.stats.requestErrs.WithLabelValues(req.Method).Inc()
		return &message{ID: req.ID, Error: errUnknownMethod(req.Method)}
	}

	if err != nil {
		s.stats.requestErrs.WithLabelValues(req.Method).Inc()
		return &message{ID: req.ID, Error: &Error{Message: err.Error()}}
	}

	var rawRes json.RawMessage
	rawRes, err = json.Marshal(res)
	if err != nil {
		s.stats.requestErrs.WithLabelValues(req.Method).Inc()
		return &message{ID: req.ID, Error: &Error{Message: err.Error()}}
	}
	return &message{ID: req.ID, Result: rawRes}
}

// broadcastState pushes a route state change to every connected peer.
func (s *Server) broadcastState(st route.State) {
	payload, err := json.Marshal(st)
	if err != nil {
		s.log.Errorf("Unable to marshal state event: %v", err)
		return
	}
	msg := &message{Event: EventRouteStateChanged, Payload: payload}

	s.peers.Range(func(_ uint64, peer *serverPeer) bool {
		if peer.queue(msg) {
			s.stats.events.Inc()
		} else {
			s.dropPeer(peer)
		}
		return true
	})
}

// Run listens on the configured address and serves control sessions until
// ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	reg := s.c.Notifications().Register(client.OnRouteChangedNtfn(s.broadcastState))
	defer reg.Unregister()

	lis, err := net.Listen("tcp", s.cfg.listenAddr)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Handler: s}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := httpServer.Serve(lis)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		httpServer.Shutdown(shutCtx)
		s.peers.Range(func(_ uint64, peer *serverPeer) bool {
			s.removePeer(peer)
			return true
		})
		return gctx.Err()
	})

	s.log.Infof("Control server listening on %s", lis.Addr())
	return g.Wait()
}
