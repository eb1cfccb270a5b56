package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lineecho/lineecho-go/pkg/log"
)

// listen opens the listening socket. Tests replace it.
var listen = listenTCP

// DefaultBacklog is the accept queue length of the listening socket.
const DefaultBacklog = 128

// DefaultHandshakeTimeout is the handshake deadline the server command
// applies unless configured otherwise.
const DefaultHandshakeTimeout = 10 * time.Second

// ServerState is the lifecycle state of a Server.
type ServerState int32

const (
	// StateIdle indicates no socket has been bound yet.
	StateIdle ServerState = iota

	// StateBound indicates the socket listens but nothing is accepted.
	StateBound

	// StateAccepting indicates the accept loop is running.
	StateAccepting

	// StateStopped is terminal: the listener is closed.
	StateStopped
)

// String returns the state name.
func (s ServerState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateBound:
		return "BOUND"
	case StateAccepting:
		return "ACCEPTING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Session is one established connection on the server side.
type Session struct {
	// ID uniquely identifies the session in logs and traces.
	ID string

	// Conn is owned by the session goroutine for its whole lifetime.
	Conn Conn

	// RemoteAddr is the originating peer address.
	RemoteAddr net.Addr

	// Started is the time the session was dispatched.
	Started time.Time
}

// ConnectionHandler drives one session until it ends. The returned error is
// logged by the server; it never reaches other sessions or the accept loop.
// The server closes the connection after ServeSession returns.
type ConnectionHandler interface {
	ServeSession(s *Session) error
}

// HandlerFunc adapts a function to ConnectionHandler.
type HandlerFunc func(s *Session) error

// ServeSession calls f(s).
func (f HandlerFunc) ServeSession(s *Session) error {
	return f(s)
}

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on (e.g. "0.0.0.0:8888" or "127.0.0.1:0").
	Address string

	// TLS enables server-side TLS when non-nil. Build it with
	// NewServerContext; it is shared by every handshake.
	TLS *Context

	// Handler runs the line protocol for each session.
	Handler ConnectionHandler

	// Backlog is the accept queue length (default: 128).
	Backlog int

	// HandshakeTimeout bounds a TLS handshake (0 = no deadline). The
	// handshake runs on the accept loop, so a stalled client delays later
	// accepts until it completes or times out.
	HandshakeTimeout time.Duration

	// MaxLineLength bounds a single request line (0 = unbounded).
	MaxLineLength int

	// Logger for operational logs (default: slog.Default()).
	Logger *slog.Logger

	// ProtocolLogger receives trace events (optional).
	ProtocolLogger log.Logger

	// OnConnect is called from the session goroutine before the handler runs.
	OnConnect func(s *Session)

	// OnDisconnect is called after the session connection is closed.
	OnDisconnect func(s *Session)

	// OnError is called for handshake and session errors.
	OnError func(err error)
}

// Server accepts stream connections and hands each one to its own goroutine.
type Server struct {
	config ServerConfig
	logger *slog.Logger
	trace  log.Logger

	mu       sync.Mutex
	listener net.Listener

	state  atomic.Int32
	active atomic.Int64
}

// NewServer creates a server. Nothing is bound until Bind or Start.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, ErrHandlerRequired
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.Backlog <= 0 {
		config.Backlog = DefaultBacklog
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config: config,
		logger: logger.With("component", "server"),
		trace:  log.OrNoop(config.ProtocolLogger),
	}, nil
}

// State returns the current lifecycle state.
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

// Addr returns the listen address, or nil before Bind.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of sessions still running.
func (s *Server) ConnectionCount() int {
	return int(s.active.Load())
}

// TLSEnabled reports whether accepted connections are TLS-wrapped.
func (s *Server) TLSEnabled() bool {
	return s.config.TLS != nil
}

// Bind creates the listening socket. A failure is a *BindError and the
// server cannot proceed.
func (s *Server) Bind() error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateBound)) {
		return ErrServerRunning
	}

	s.mu.Lock()
	ln, err := listen(s.config.Address, s.config.Backlog)
	if err != nil {
		s.mu.Unlock()
		s.state.CompareAndSwap(int32(StateBound), int32(StateStopped))
		return &BindError{Address: s.config.Address, Err: err}
	}
	// A concurrent Stop may have run before the listener was stored
	if s.State() == StateStopped {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrServerStopped
	}
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("listening", "addr", ln.Addr().String(), "tls", s.TLSEnabled(), "backlog", s.config.Backlog)
	s.logState(StateIdle, StateBound, "")
	return nil
}

// Start binds and runs the accept loop in the background.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Bind(); err != nil {
		return err
	}
	go func() {
		if err := s.Serve(ctx); err != nil {
			s.logger.Error("accept loop ended", "error", err)
		}
	}()
	return nil
}

// Serve runs the sequential accept loop until the listener is closed or
// ctx is cancelled. It returns nil on a regular stop.
func (s *Server) Serve(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateBound), int32(StateAccepting)) {
		switch s.State() {
		case StateIdle:
			return ErrServerNotBound
		case StateStopped:
			return ErrServerStopped
		default:
			return ErrServerRunning
		}
	}
	s.logState(StateBound, StateAccepting, "")

	stop := context.AfterFunc(ctx, func() { _ = s.Stop() })
	defer stop()

	var backoff time.Duration
	for {
		raw, err := s.listener.Accept()
		if err != nil {
			if s.State() == StateStopped || errors.Is(err, net.ErrClosed) {
				return nil
			}

			// Resource exhaustion and similar: back off and keep accepting
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.logger.Warn("accept failed", "error", err, "retry_in", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		conn, ok := s.establish(ctx, raw)
		if !ok {
			continue
		}
		s.dispatch(conn)
	}
}

// Stop closes the listener. Running sessions are not drained; they end on
// their own when their peers disconnect or quit.
func (s *Server) Stop() error {
	old := ServerState(s.state.Swap(int32(StateStopped)))
	if old == StateStopped {
		return nil
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.logState(old, StateStopped, "")
	s.logger.Info("stopped", "active_sessions", s.ConnectionCount())
	return err
}

// establish performs the optional TLS handshake. A failed handshake is
// logged, the raw connection closed, and false returned.
func (s *Server) establish(ctx context.Context, raw net.Conn) (Conn, bool) {
	peer := raw.RemoteAddr()
	s.logger.Debug("connection accepted", "peer", addrString(peer))

	if s.config.TLS == nil {
		return NewConn(raw, s.config.MaxLineLength), true
	}

	tc := tls.Server(raw, s.config.TLS.Config())

	hsCtx := ctx
	if s.config.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		hsCtx, cancel = context.WithTimeout(ctx, s.config.HandshakeTimeout)
		defer cancel()
	}

	if err := tc.HandshakeContext(hsCtx); err != nil {
		_ = raw.Close()
		hsErr := &HandshakeError{RemoteAddr: peer, Err: err}
		s.logger.Warn("TLS handshake failed", "peer", addrString(peer), "error", err)
		s.trace.Log(log.Event{
			Timestamp:  time.Now(),
			Layer:      log.LayerTransport,
			Category:   log.CategoryError,
			LocalRole:  log.RoleServer,
			RemoteAddr: addrString(peer),
			Error: &log.ErrorEventData{
				Layer:   log.LayerTransport,
				Message: err.Error(),
				Context: "handshake",
			},
		})
		s.reportError(hsErr)
		return nil, false
	}

	return NewConn(tc, s.config.MaxLineLength), true
}

// dispatch starts the session goroutine. The accept loop never waits for it.
func (s *Server) dispatch(conn Conn) {
	sess := &Session{
		ID:         uuid.New().String(),
		Conn:       conn,
		RemoteAddr: conn.RemoteAddr(),
		Started:    time.Now(),
	}
	s.active.Add(1)
	go s.serveSession(sess)
}

// serveSession runs the handler and keeps every fault inside the session.
func (s *Server) serveSession(sess *Session) {
	peer := addrString(sess.RemoteAddr)
	logger := s.logger.With("session", sess.ID, "peer", peer)

	defer func() {
		_ = sess.Conn.Close()
		s.active.Add(-1)
		s.logSessionState(sess, "CONNECTED", "DISCONNECTED", "")
		logger.Info("session closed", "duration", time.Since(sess.Started).Round(time.Millisecond))
		if s.config.OnDisconnect != nil {
			s.config.OnDisconnect(sess)
		}
	}()

	if info, ok := sess.Conn.TLSInfo(); ok {
		logger.Info("TLS session", "cipher", info.CipherSuite, "proto", info.Version, "bits", info.KeyBits)
		s.logHandshake(sess, info)
	} else {
		logger.Info("session opened")
	}
	s.logSessionState(sess, "", "CONNECTED", "")

	if s.config.OnConnect != nil {
		s.config.OnConnect(sess)
	}

	if err := s.runHandler(sess); err != nil {
		var sessErr *SessionError
		if !errors.As(err, &sessErr) {
			sessErr = &SessionError{RemoteAddr: sess.RemoteAddr, Err: err}
		}
		logger.Warn("session error", "error", sessErr.Err)
		s.trace.Log(log.Event{
			Timestamp:  time.Now(),
			SessionID:  sess.ID,
			Layer:      log.LayerProtocol,
			Category:   log.CategoryError,
			LocalRole:  log.RoleServer,
			RemoteAddr: peer,
			Error: &log.ErrorEventData{
				Layer:   log.LayerProtocol,
				Message: sessErr.Err.Error(),
				Context: "session",
			},
		})
		s.reportError(sessErr)
	}
}

// runHandler converts a handler panic into an error for this session only.
func (s *Server) runHandler(sess *Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.config.Handler.ServeSession(sess)
}

func (s *Server) reportError(err error) {
	if s.config.OnError != nil {
		s.config.OnError(err)
	}
}

func (s *Server) logState(old, next ServerState, reason string) {
	s.trace.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTransport,
		Category:  log.CategoryState,
		LocalRole: log.RoleServer,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityListener,
			OldState: old.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
}

func (s *Server) logSessionState(sess *Session, old, next, reason string) {
	s.trace.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  sess.ID,
		Layer:      log.LayerTransport,
		Category:   log.CategoryState,
		LocalRole:  log.RoleServer,
		RemoteAddr: addrString(sess.RemoteAddr),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old,
			NewState: next,
			Reason:   reason,
		},
	})
}

func (s *Server) logHandshake(sess *Session, info TLSInfo) {
	hs := &log.HandshakeEvent{
		Version:     info.Version,
		CipherSuite: info.CipherSuite,
		KeyBits:     info.KeyBits,
	}
	if tc, ok := sess.Conn.(*tlsConn); ok {
		state := tc.ConnectionState()
		hs.ServerName = state.ServerName
		hs.PeerCertificates = len(state.PeerCertificates)
	}
	s.trace.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  sess.ID,
		Layer:      log.LayerTransport,
		Category:   log.CategoryHandshake,
		LocalRole:  log.RoleServer,
		RemoteAddr: addrString(sess.RemoteAddr),
		Handshake:  hs,
	})
}
