//go:build !unix

package transport

import (
	"context"
	"net"
)

// listenTCP falls back to the runtime listener; the backlog is left to the
// operating system default on these platforms.
func listenTCP(address string, _ int) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(context.Background(), "tcp", address)
}
