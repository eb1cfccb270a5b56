package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lineecho/lineecho-go/pkg/cert"
)

// testPKI is a CA with one server and one client leaf on disk.
type testPKI struct {
	paths cert.Paths
}

func newTestPKI(t *testing.T) testPKI {
	t.Helper()
	paths := cert.DefaultPaths(t.TempDir())

	ca, err := cert.GenerateCA("lineecho test CA", time.Hour)
	require.NoError(t, err)
	server, err := ca.IssueServer([]string{"localhost", "127.0.0.1", "::1"}, time.Hour)
	require.NoError(t, err)
	client, err := ca.IssueClient("test client", time.Hour)
	require.NoError(t, err)

	require.NoError(t, cert.WriteAuthority(paths, ca))
	require.NoError(t, cert.WriteLeaf(paths.ServerCert, paths.ServerKey, server))
	require.NoError(t, cert.WriteLeaf(paths.ClientCert, paths.ClientKey, client))
	return testPKI{paths: paths}
}

// selfSignedFiles writes a server leaf whose issuer nobody trusts.
func selfSignedFiles(t *testing.T) (certFile, keyFile string) {
	t.Helper()
	dir := t.TempDir()
	leaf, err := cert.GenerateSelfSigned([]string{"localhost", "127.0.0.1"}, time.Hour)
	require.NoError(t, err)
	certFile = filepath.Join(dir, "self.crt")
	keyFile = filepath.Join(dir, "self.key")
	require.NoError(t, cert.WriteLeaf(certFile, keyFile, leaf))
	return certFile, keyFile
}

// echoHandler answers every line with "OK " + line.
func echoHandler() HandlerFunc {
	return func(s *Session) error {
		for {
			line, err := s.Conn.ReadLine()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			if _, err := s.Conn.Write(append([]byte("OK "), line...)); err != nil {
				return err
			}
			if err := s.Conn.Flush(); err != nil {
				return err
			}
		}
	}
}

// errorSink collects errors reported through ServerConfig.OnError.
type errorSink struct {
	mu   sync.Mutex
	errs []error
}

func (e *errorSink) add(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errs = append(e.errs, err)
}

func (e *errorSink) all() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]error(nil), e.errs...)
}

func startServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Address == "" {
		cfg.Address = "127.0.0.1:0"
	}
	if cfg.Handler == nil {
		cfg.Handler = echoHandler()
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Stop() })

	require.Eventually(t, func() bool {
		return srv.State() == StateAccepting
	}, 2*time.Second, 5*time.Millisecond)
	return srv
}

func serverPort(t *testing.T, srv *Server) int {
	t.Helper()
	addr, ok := srv.Addr().(*net.TCPAddr)
	require.True(t, ok, "listen address %v", srv.Addr())
	return addr.Port
}

func dialServer(t *testing.T, srv *Server, cfg DialConfig) (Conn, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, "127.0.0.1", serverPort(t, srv), cfg)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, err
}

func roundTrip(t *testing.T, conn Conn, line string) string {
	t.Helper()
	_, err := conn.Write([]byte(line))
	require.NoError(t, err)
	require.NoError(t, conn.Flush())
	resp, err := conn.ReadLine()
	require.NoError(t, err)
	return string(resp)
}
