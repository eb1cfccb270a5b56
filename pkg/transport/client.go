package transport

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"time"
)

// DefaultConnectTimeout bounds dialing plus handshake when the caller's
// context has no deadline.
const DefaultConnectTimeout = 30 * time.Second

// DialConfig configures a client connection.
type DialConfig struct {
	// TLS enables a client handshake when non-nil (see NewClientContext).
	TLS *Context

	// ServerName overrides the SNI name. Empty means the context's
	// ServerName, falling back to the dialed host.
	ServerName string

	// ConnectTimeout applies when ctx carries no deadline (default: 30s).
	ConnectTimeout time.Duration

	// MaxLineLength bounds a single response line (0 = unbounded). A
	// server capped at N answers with up to N+3 bytes ("OK " prefix).
	MaxLineLength int
}

// Dial opens one outbound connection to host:port and, if configured,
// completes the TLS handshake before returning. Any failure is a
// *ConnectError.
func Dial(ctx context.Context, host string, port int, cfg DialConfig) (Conn, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var dialer net.Dialer
	raw, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &ConnectError{Address: address, Err: err}
	}

	if cfg.TLS == nil {
		return NewConn(raw, cfg.MaxLineLength), nil
	}

	tlsConfig := cfg.TLS.Config().Clone()
	tlsConfig.ServerName = SNIName(host, cfg.ServerName, tlsConfig.ServerName)

	tc := tls.Client(raw, tlsConfig)
	if err := tc.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, &ConnectError{Address: address, Err: err}
	}

	return NewConn(tc, cfg.MaxLineLength), nil
}

// SNIName picks the server name: an explicit override first, then the name
// configured on the context, then the dialed host.
func SNIName(host, override, configured string) string {
	switch {
	case override != "":
		return override
	case configured != "":
		return configured
	default:
		return host
	}
}
