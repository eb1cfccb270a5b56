package transport

import (
	"context"
	"net"
)

// TransportServer is the server surface used by the commands.
// Implemented by Server.
type TransportServer interface {
	// Start binds and begins accepting connections.
	Start(ctx context.Context) error

	// Stop closes the listener.
	Stop() error

	// Addr returns the listen address.
	Addr() net.Addr

	// ConnectionCount returns the number of running sessions.
	ConnectionCount() int
}

// Compile-time interface satisfaction checks.
var (
	_ TransportServer   = (*Server)(nil)
	_ ConnectionHandler = HandlerFunc(nil)
	_ Conn              = (*plainConn)(nil)
	_ Conn              = (*tlsConn)(nil)
)
