package echo

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/lineecho/lineecho-go/pkg/log"
	"github.com/lineecho/lineecho-go/pkg/transport"
)

// Handler serves the line-echo protocol for the server role.
type Handler struct {
	logger *slog.Logger
	trace  log.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithProtocolLogger sets the trace logger for line events.
func WithProtocolLogger(l log.Logger) HandlerOption {
	return func(h *Handler) {
		h.trace = log.OrNoop(l)
	}
}

// NewHandler creates a Handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		logger: slog.Default(),
		trace:  log.NoopLogger{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeSession implements transport.ConnectionHandler.
func (h *Handler) ServeSession(s *transport.Session) error {
	return h.serve(s.Conn, s.ID, h.logger.With("session", s.ID, "peer", peerString(s.Conn)))
}

// ServeConn runs the protocol on conn until the peer quits or disconnects.
// A clean end returns nil. I/O failures come back as *transport.SessionError;
// the caller owns conn and closes it.
func (h *Handler) ServeConn(conn transport.Conn) error {
	return h.serve(conn, "", h.logger.With("peer", peerString(conn)))
}

func (h *Handler) serve(conn transport.Conn, sessionID string, logger *slog.Logger) error {
	for {
		raw, err := conn.ReadLine()
		if errors.Is(err, io.EOF) {
			logger.Info("client disconnected")
			return nil
		}
		if err != nil {
			return &transport.SessionError{RemoteAddr: conn.RemoteAddr(), Err: err}
		}

		text := DecodeLine(raw)
		logger.Debug("line received", "text", text)
		h.traceLine(conn, sessionID, log.DirectionIn, len(raw), text)

		reply, done := Reply(text)
		if _, err := conn.Write([]byte(reply)); err != nil {
			return &transport.SessionError{RemoteAddr: conn.RemoteAddr(), Err: err}
		}
		if err := conn.Flush(); err != nil {
			return &transport.SessionError{RemoteAddr: conn.RemoteAddr(), Err: err}
		}
		h.traceLine(conn, sessionID, log.DirectionOut, len(reply), DecodeLine([]byte(reply)))

		if done {
			logger.Info("client quit")
			return nil
		}
	}
}

func (h *Handler) traceLine(conn transport.Conn, sessionID string, dir log.Direction, size int, text string) {
	h.trace.Log(log.Event{
		Timestamp:  time.Now(),
		SessionID:  sessionID,
		Direction:  dir,
		Layer:      log.LayerProtocol,
		Category:   log.CategoryLine,
		LocalRole:  log.RoleServer,
		RemoteAddr: peerString(conn),
		Line:       log.NewLineEvent(size, text),
	})
}

func peerString(conn transport.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

var _ transport.ConnectionHandler = (*Handler)(nil)
