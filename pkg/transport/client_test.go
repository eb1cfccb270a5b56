package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSNIName(t *testing.T) {
	tests := []struct {
		host, override, configured, want string
	}{
		{"127.0.0.1", "", "", "127.0.0.1"},
		{"127.0.0.1", "echo.local", "", "echo.local"},
		{"127.0.0.1", "", "cfg.local", "cfg.local"},
		{"127.0.0.1", "echo.local", "cfg.local", "echo.local"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SNIName(tt.host, tt.override, tt.configured))
	}
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, err = Dial(context.Background(), "127.0.0.1", port, DialConfig{ConnectTimeout: time.Second})
	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	assert.Contains(t, connErr.Address, "127.0.0.1:")
}

func TestDialTLSWithCABundle(t *testing.T) {
	pki := newTestPKI(t)
	serverCtx, err := NewServerContext(ServerTLSConfig{CertFile: pki.paths.ServerCert, KeyFile: pki.paths.ServerKey})
	require.NoError(t, err)
	srv := startServer(t, ServerConfig{TLS: serverCtx})

	clientCtx, err := NewClientContext(ClientTLSConfig{CAFile: pki.paths.CACert})
	require.NoError(t, err)

	conn, err := dialServer(t, srv, DialConfig{TLS: clientCtx})
	require.NoError(t, err)

	info, ok := conn.TLSInfo()
	require.True(t, ok)
	assert.Equal(t, "TLS 1.3", info.Version)
	assert.NotEmpty(t, info.CipherSuite)
	assert.Positive(t, info.KeyBits)

	assert.Equal(t, "OK hello\n", roundTrip(t, conn, "hello\n"))
}

func TestDialTLSWrongServerName(t *testing.T) {
	pki := newTestPKI(t)
	serverCtx, err := NewServerContext(ServerTLSConfig{CertFile: pki.paths.ServerCert, KeyFile: pki.paths.ServerKey})
	require.NoError(t, err)
	srv := startServer(t, ServerConfig{TLS: serverCtx})

	clientCtx, err := NewClientContext(ClientTLSConfig{CAFile: pki.paths.CACert})
	require.NoError(t, err)

	_, err = dialServer(t, srv, DialConfig{TLS: clientCtx, ServerName: "wrong.example"})
	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr)
	var hostErr x509.HostnameError
	assert.True(t, errors.As(err, &hostErr), "error = %v", err)
}

func TestDialSelfSignedInsecureVsVerifying(t *testing.T) {
	certFile, keyFile := selfSignedFiles(t)
	serverCtx, err := NewServerContext(ServerTLSConfig{CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)
	sink := &errorSink{}
	srv := startServer(t, ServerConfig{TLS: serverCtx, OnError: sink.add})

	verifying, err := NewClientContext(ClientTLSConfig{})
	require.NoError(t, err)
	_, err = dialServer(t, srv, DialConfig{TLS: verifying})
	var connErr *ConnectError
	require.ErrorAs(t, err, &connErr, "platform trust store rejects a self-signed server")

	// The server survives the failed handshake
	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 2*time.Second, 5*time.Millisecond)

	insecure, err := NewClientContext(ClientTLSConfig{Insecure: true})
	require.NoError(t, err)
	conn, err := dialServer(t, srv, DialConfig{TLS: insecure})
	require.NoError(t, err)
	assert.Equal(t, "OK insecure\n", roundTrip(t, conn, "insecure\n"))
}

func TestDialOptionalClientCert(t *testing.T) {
	pki := newTestPKI(t)
	serverCtx, err := NewServerContext(ServerTLSConfig{
		CertFile: pki.paths.ServerCert,
		KeyFile:  pki.paths.ServerKey,
		CAFile:   pki.paths.CACert,
	})
	require.NoError(t, err)

	var peerCerts int
	done := make(chan struct{}, 1)
	echo := echoHandler()
	srv := startServer(t, ServerConfig{
		TLS: serverCtx,
		Handler: HandlerFunc(func(s *Session) error {
			if tc, ok := s.Conn.(*tlsConn); ok {
				peerCerts = len(tc.ConnectionState().PeerCertificates)
			}
			done <- struct{}{}
			return echo(s)
		}),
	})

	// Certless client is accepted by an OPTIONAL server
	clientCtx, err := NewClientContext(ClientTLSConfig{CAFile: pki.paths.CACert})
	require.NoError(t, err)
	conn, err := dialServer(t, srv, DialConfig{TLS: clientCtx})
	require.NoError(t, err)
	assert.Equal(t, "OK anonymous\n", roundTrip(t, conn, "anonymous\n"))
	<-done
	assert.Equal(t, 0, peerCerts)

	// A client presenting a CA-issued certificate is verified
	pair, err := tls.LoadX509KeyPair(pki.paths.ClientCert, pki.paths.ClientKey)
	require.NoError(t, err)
	clientCtx.Config().Certificates = []tls.Certificate{pair}

	conn, err = dialServer(t, srv, DialConfig{TLS: clientCtx})
	require.NoError(t, err)
	assert.Equal(t, "OK known\n", roundTrip(t, conn, "known\n"))
	<-done
	assert.Equal(t, 1, peerCerts)
}

func TestDialRequiredClientCertRejected(t *testing.T) {
	pki := newTestPKI(t)
	serverCtx, err := NewServerContext(ServerTLSConfig{
		CertFile:          pki.paths.ServerCert,
		KeyFile:           pki.paths.ServerKey,
		CAFile:            pki.paths.CACert,
		RequireClientCert: true,
	})
	require.NoError(t, err)
	sink := &errorSink{}
	srv := startServer(t, ServerConfig{TLS: serverCtx, OnError: sink.add})

	clientCtx, err := NewClientContext(ClientTLSConfig{CAFile: pki.paths.CACert})
	require.NoError(t, err)

	// With TLS 1.3 the client may finish its side before the server rejects
	conn, err := dialServer(t, srv, DialConfig{TLS: clientCtx})
	if err == nil {
		_, _ = conn.Write([]byte("hi\n"))
		_ = conn.Flush()
		_, err = conn.ReadLine()
		assert.Error(t, err)
	}

	require.Eventually(t, func() bool { return len(sink.all()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.ErrorAs(t, sink.all()[0], new(*HandshakeError))
}
