package transport

import (
	"errors"
	"fmt"
	"net"
)

// Sentinel errors.
var (
	ErrMissingCertificate = errors.New("server certificate is required")
	ErrMissingKey         = errors.New("server private key is required")
	ErrInvalidCABundle    = errors.New("CA bundle contains no usable certificates")
	ErrLineTooLong        = errors.New("line exceeds maximum length")
	ErrServerRunning      = errors.New("server already running")
	ErrServerStopped      = errors.New("server stopped")
	ErrServerNotBound     = errors.New("server not bound")
	ErrHandlerRequired    = errors.New("connection handler is required")
)

// ConfigError reports a bad input to TLS context construction. It is raised
// before any socket is opened.
type ConfigError struct {
	Field string
	Path  string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("tls config: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("tls config: %s %q: %v", e.Field, e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// BindError reports a failure to set up the listening socket.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("bind %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// HandshakeError reports a failed TLS negotiation on one accepted connection.
type HandshakeError struct {
	RemoteAddr net.Addr
	Err        error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("TLS handshake with %s failed: %v", addrString(e.RemoteAddr), e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// SessionError reports an I/O or decode fault while servicing a session.
type SessionError struct {
	RemoteAddr net.Addr
	Err        error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session with %s: %v", addrString(e.RemoteAddr), e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// ConnectError reports a failure to establish the client connection,
// including its TLS handshake.
type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func addrString(addr net.Addr) string {
	if addr == nil {
		return "<unknown>"
	}
	return addr.String()
}
