// Package session drives the CDP connection state machine (spec.md §4.4):
// handshake, application acceptance, authentication and re-authentication,
// clock synchronisation, reconnection, and incoming-message dispatch.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/cdptech/cdpclient/internal/cdperrors"
	"github.com/cdptech/cdpclient/internal/pending"
	"github.com/cdptech/cdpclient/internal/transport"
	"github.com/cdptech/cdpclient/internal/tree"
	"github.com/cdptech/cdpclient/internal/wire"
)

// State is one position in the connection state machine of spec.md §4.4.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHello
	StateAppAcceptance
	StateAwaitingCredentials
	StateAuthenticating
	StateTimeSync
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateAwaitingHello:
		return "AWAITING_HELLO"
	case StateAppAcceptance:
		return "APP_ACCEPTANCE"
	case StateAwaitingCredentials:
		return "AWAITING_CREDENTIALS"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateTimeSync:
		return "TIME_SYNC"
	case StateReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// Config configures a Session. NewTransport is called once per connection
// attempt so each attempt gets a fresh Transport.
type Config struct {
	Host           string
	Port           int
	AutoReconnect  bool
	ReconnectDelay time.Duration // defaults to 1s (SPEC_FULL.md §12.5)
	Listener       Listener
	Logger         *slog.Logger
	Metrics        Metrics
	NewTransport   func() transport.Transport

	// TLS, when true, dials wss:// instead of ws:// (spec.md §6). Set
	// whenever Options.TLSConfig is non-nil; NewTransport is expected to
	// have been built to actually speak TLS in that case.
	TLS bool
}

// Session owns one logical connection to a CDP server across however many
// physical reconnects (spec.md §3 Session state, §5 concurrency model).
// Structural mutation happens from whichever goroutine is driving the
// current connection attempt (runConnection) plus whatever goroutines are
// awaiting a round trip they themselves issued; mu guards the shared
// scalar fields below.
type Session struct {
	host           string
	port           int
	tls            bool
	autoReconnect  bool
	reconnectDelay time.Duration
	listener       Listener
	logger         *slog.Logger
	metrics        Metrics
	newTransport   func() transport.Transport

	pending *pending.Requests
	tree    *tree.NodeTree

	mu sync.Mutex

	state State
	t     transport.Transport // current connection's transport, nil between attempts

	challenge             []byte
	credentials           map[string]string
	systemName            string
	applicationName       string
	cdpVersion            string
	systemUseNotification string

	timeOffsetNS     int64
	lastTimeSyncAt   time.Time
	timeSyncInFlight bool
	timeReqFuture    *pending.Future

	pendingReauth    bool
	reauthRespFuture *pending.Future
}

// New constructs a Session. The returned Session's NodeTree is reachable
// via Tree().
func New(cfg Config) *Session {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 1 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Port == 0 {
		cfg.Port = 7689
	}
	s := &Session{
		host:           cfg.Host,
		port:           cfg.Port,
		tls:            cfg.TLS,
		autoReconnect:  cfg.AutoReconnect,
		reconnectDelay: cfg.ReconnectDelay,
		listener:       cfg.Listener,
		logger:         cfg.Logger.With("component", "session"),
		metrics:        cfg.Metrics,
		newTransport:   cfg.NewTransport,
		pending:        pending.New(),
	}
	s.tree = tree.New(s)
	return s
}

// Tree returns the session's NodeTree.
func (s *Session) Tree() *tree.NodeTree { return s.tree }

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.logger.Info("state transition", "from", prev, "to", st)
	}
}

func (s *Session) url() string {
	scheme := "ws"
	if s.tls {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.host, s.port)
}

func (s *Session) send(frame []byte) error {
	s.mu.Lock()
	t := s.t
	s.mu.Unlock()
	if t == nil {
		return transport.ErrClosed
	}
	return t.Send(frame)
}

// Run drives the reconnect loop (spec.md §4.6 run_event_loop): dial,
// drive one connection to completion or failure, then either stop (no
// auto-reconnect, or a terminal ctx cancellation) or sleep
// reconnectDelay and try again. A dropped connection with auto-reconnect
// enabled does NOT reject outstanding PendingRequests; they are re-issued
// once READY is reached again (spec.md §7).
func (s *Session) Run(ctx context.Context) error {
	for {
		connID := uuid.NewString()
		logger := s.logger.With("conn_id", connID)
		t := s.newTransport()

		s.setState(StateConnecting)
		err := s.runConnection(ctx, t, logger)

		s.mu.Lock()
		s.t = nil
		s.mu.Unlock()
		s.setState(StateDisconnected)
		s.metrics.SetConnected(false)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.autoReconnect {
			s.pending.Clear(err)
			s.metrics.SetPendingCount(0)
			return err
		}

		logger.Warn("connection lost, will reconnect", "error", err, "delay", s.reconnectDelay)
		s.metrics.IncReconnectAttempt()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reconnectDelay):
		}
	}
}

// Disconnect disables auto-reconnect, rejects every outstanding future
// with ConnectionError, and closes the current transport (spec.md §4.6).
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.autoReconnect = false
	t := s.t
	s.mu.Unlock()

	err := &cdperrors.ConnectionError{Msg: "connection was closed"}
	s.pending.Clear(err)
	s.metrics.SetPendingCount(0)
	s.rejectInFlightTimeFutures(err)

	if t != nil {
		t.Close()
	}
}

func (s *Session) rejectInFlightTimeFutures(err error) {
	s.mu.Lock()
	tf, rf := s.timeReqFuture, s.reauthRespFuture
	s.timeReqFuture = nil
	s.reauthRespFuture = nil
	s.mu.Unlock()

	if tf != nil {
		tf.Resolve(pending.Outcome{Err: err})
	}
	if rf != nil {
		rf.Resolve(pending.Outcome{Err: err})
	}
}

// runConnection drives one physical connection from dial through
// handshake to READY dispatch, returning when the connection ends (error
// or context cancellation).
func (s *Session) runConnection(ctx context.Context, t transport.Transport, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	closeCh := make(chan struct{}, 1)
	t.OnError(func(err error) {
		select {
		case errCh <- err:
		default:
		}
	})
	t.OnClose(func() {
		select {
		case closeCh <- struct{}{}:
		default:
		}
	})

	if err := t.Dial(ctx, s.url()); err != nil {
		return &cdperrors.ConnectionError{Msg: "dial", Cause: err}
	}
	s.mu.Lock()
	s.t = t
	s.mu.Unlock()
	defer t.Close()
	defer s.rejectInFlightTimeFutures(&cdperrors.ConnectionError{Msg: "connection lost"})

	recv := t.Recv()

	s.setState(StateAwaitingHello)
	helloFrame, err := s.awaitFrame(ctx, recv, errCh, closeCh)
	if err != nil {
		return err
	}
	hello, err := wire.DecodeHello(helloFrame)
	if err != nil || hello.CompatVersion != 1 {
		return &cdperrors.CommunicationError{Msg: "protocol mismatch"}
	}
	s.mu.Lock()
	s.challenge = hello.Challenge
	s.systemName = hello.SystemName
	s.applicationName = hello.ApplicationName
	s.cdpVersion = hello.CDPVersion()
	s.systemUseNotification = hello.SystemUseNotification
	s.mu.Unlock()
	logger.Info("hello received", "system", hello.SystemName, "application", hello.ApplicationName, "cdp_version", hello.CDPVersion())

	s.setState(StateAppAcceptance)
	accepted, err := s.requestAcceptance(ctx, hello, errCh, closeCh)
	if err != nil {
		return err
	}
	if !accepted {
		return &cdperrors.ConnectionError{Msg: "application acceptance rejected"}
	}

	if len(hello.Challenge) > 0 {
		if err := s.authenticate(ctx, recv, errCh, closeCh, hello.Challenge); err != nil {
			return err
		}
	}

	s.setState(StateTimeSync)
	syncFut := s.startTimeSync()
	syncCh := syncFut.Chan()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return &cdperrors.ConnectionError{Msg: "transport error", Cause: err}
		case <-closeCh:
			return &cdperrors.ConnectionError{Msg: "transport closed"}
		case outcome, ok := <-syncCh:
			if !ok {
				continue
			}
			syncCh = nil // one-shot; disable this case for the rest of the connection
			if outcome.Err != nil {
				return outcome.Err
			}
			s.setState(StateReady)
			s.metrics.SetConnected(true)
			go func() {
				if refreshed := s.tree.Refresh().Recv(); refreshed.Err == nil {
					s.flushPendingStructureRequests()
				}
			}()
		case frame, ok := <-recv:
			if !ok {
				return &cdperrors.ConnectionError{Msg: "transport closed"}
			}
			s.dispatchFrame(logger, frame)
		}
	}
}

func (s *Session) awaitFrame(ctx context.Context, recv <-chan []byte, errCh <-chan error, closeCh <-chan struct{}) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errCh:
		return nil, &cdperrors.ConnectionError{Msg: "transport error", Cause: err}
	case <-closeCh:
		return nil, &cdperrors.ConnectionError{Msg: "transport closed"}
	case frame, ok := <-recv:
		if !ok {
			return nil, &cdperrors.ConnectionError{Msg: "transport closed"}
		}
		return frame, nil
	}
}

func (s *Session) requestAcceptance(ctx context.Context, hello wire.Hello, errCh <-chan error, closeCh <-chan struct{}) (bool, error) {
	req := newAcceptanceRequest(s.host, s.port, hello)
	s.listener.OnApplicationAcceptanceRequested(req)
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-errCh:
		return false, &cdperrors.ConnectionError{Msg: "transport error", Cause: err}
	case <-closeCh:
		return false, &cdperrors.ConnectionError{Msg: "transport closed"}
	case accepted := <-req.result:
		return accepted, nil
	}
}

// flushPendingStructureRequests re-issues every outstanding structure
// request now that READY has been reached, resolving each path against
// the (possibly freshly re-fetched) tree for a current node id
// (spec.md §4.4.1).
func (s *Session) flushPendingStructureRequests() {
	for _, path := range s.pending.Paths() {
		if path == nil {
			s.sendStructureRequest(0, true)
			continue
		}
		n := s.tree.FindByPath(*path)
		if n == nil {
			continue
		}
		s.sendStructureRequest(n.ID(), false)
	}
	s.metrics.SetPendingCount(s.pending.Len())
}

func (s *Session) sendStructureRequest(nodeID uint32, isRoot bool) {
	req := wire.StructureRequest{}
	if !isRoot {
		req.NodeIDs = []uint32{nodeID}
	}
	frame, err := wire.Encode(wire.MsgStructureRequest, req)
	if err != nil {
		return
	}
	s.send(frame)
}
