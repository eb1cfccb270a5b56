package main

import (
	"fmt"
	"net"

	"github.com/lineecho/lineecho-go/pkg/transport"
)

// boundPort returns the port the server actually listens on, which differs
// from the configured one when port 0 was requested.
func boundPort(srv *transport.Server) (uint16, error) {
	addr, ok := srv.Addr().(*net.TCPAddr)
	if !ok || addr == nil {
		return 0, fmt.Errorf("unexpected listen address %v", srv.Addr())
	}
	return uint16(addr.Port), nil
}
