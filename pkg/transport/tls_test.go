package transport

import (
	"crypto/tls"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServerContextMissingInputs(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerTLSConfig
		wantErr error
	}{
		{"NoCert", ServerTLSConfig{KeyFile: "server.key"}, ErrMissingCertificate},
		{"NoKey", ServerTLSConfig{CertFile: "server.crt"}, ErrMissingKey},
		{"Nothing", ServerTLSConfig{}, ErrMissingCertificate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewServerContext(tt.cfg)
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "error = %v", err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewServerContextBadFiles(t *testing.T) {
	pki := newTestPKI(t)

	_, err := NewServerContext(ServerTLSConfig{CertFile: "/nonexistent.crt", KeyFile: pki.paths.ServerKey})
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "/nonexistent.crt", cfgErr.Path)

	// Key does not match certificate
	_, err = NewServerContext(ServerTLSConfig{CertFile: pki.paths.ServerCert, KeyFile: pki.paths.ClientKey})
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewServerContextClientAuth(t *testing.T) {
	pki := newTestPKI(t)

	none, err := NewServerContext(ServerTLSConfig{CertFile: pki.paths.ServerCert, KeyFile: pki.paths.ServerKey})
	require.NoError(t, err)
	assert.Equal(t, tls.NoClientCert, none.ClientAuth())
	assert.Nil(t, none.Config().ClientCAs)
	assert.Equal(t, uint16(tls.VersionTLS12), none.Config().MinVersion)

	optional, err := NewServerContext(ServerTLSConfig{
		CertFile: pki.paths.ServerCert,
		KeyFile:  pki.paths.ServerKey,
		CAFile:   pki.paths.CACert,
	})
	require.NoError(t, err)
	assert.Equal(t, tls.VerifyClientCertIfGiven, optional.ClientAuth())
	assert.NotNil(t, optional.Config().ClientCAs)

	required, err := NewServerContext(ServerTLSConfig{
		CertFile:          pki.paths.ServerCert,
		KeyFile:           pki.paths.ServerKey,
		CAFile:            pki.paths.CACert,
		RequireClientCert: true,
	})
	require.NoError(t, err)
	assert.Equal(t, tls.RequireAndVerifyClientCert, required.ClientAuth())

	// Without a CA bundle the require switch has nothing to verify against
	ignored, err := NewServerContext(ServerTLSConfig{
		CertFile:          pki.paths.ServerCert,
		KeyFile:           pki.paths.ServerKey,
		RequireClientCert: true,
	})
	require.NoError(t, err)
	assert.Equal(t, tls.NoClientCert, ignored.ClientAuth())
}

func TestInvalidCABundle(t *testing.T) {
	pki := newTestPKI(t)
	bogus := filepath.Join(t.TempDir(), "bogus.pem")
	require.NoError(t, os.WriteFile(bogus, []byte("not a certificate"), 0644))

	_, err := NewServerContext(ServerTLSConfig{
		CertFile: pki.paths.ServerCert,
		KeyFile:  pki.paths.ServerKey,
		CAFile:   bogus,
	})
	assert.ErrorIs(t, err, ErrInvalidCABundle)

	_, err = NewClientContext(ClientTLSConfig{CAFile: bogus})
	assert.ErrorIs(t, err, ErrInvalidCABundle)

	_, err = NewClientContext(ClientTLSConfig{CAFile: filepath.Join(t.TempDir(), "missing.pem")})
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewClientContext(t *testing.T) {
	pki := newTestPKI(t)

	def, err := NewClientContext(ClientTLSConfig{})
	require.NoError(t, err)
	assert.False(t, def.Insecure())
	assert.Nil(t, def.Config().RootCAs, "platform trust store")
	assert.Equal(t, uint16(tls.VersionTLS12), def.Config().MinVersion)

	withCA, err := NewClientContext(ClientTLSConfig{CAFile: pki.paths.CACert, ServerName: "localhost"})
	require.NoError(t, err)
	assert.NotNil(t, withCA.Config().RootCAs)
	assert.Equal(t, "localhost", withCA.Config().ServerName)

	// Insecure wins over a CA bundle, even an unreadable one
	insecure, err := NewClientContext(ClientTLSConfig{Insecure: true, CAFile: "/nonexistent.pem"})
	require.NoError(t, err)
	assert.True(t, insecure.Insecure())
	assert.Nil(t, insecure.Config().RootCAs)
}

func TestKeyLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.log")

	ctx, err := NewClientContext(ClientTLSConfig{Insecure: true, KeyLogFile: path})
	require.NoError(t, err)
	assert.True(t, ctx.KeyLogging())
	assert.NotNil(t, ctx.Config().KeyLogWriter)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	require.NoError(t, ctx.Close())
	assert.False(t, ctx.KeyLogging())
	require.NoError(t, ctx.Close(), "second Close is a no-op")

	// Unopenable sink is ignored
	ctx, err = NewClientContext(ClientTLSConfig{Insecure: true, KeyLogFile: filepath.Join(t.TempDir(), "no", "such", "dir")})
	require.NoError(t, err)
	assert.False(t, ctx.KeyLogging())
	assert.Nil(t, ctx.Config().KeyLogWriter)
}

func TestOpenKeyLog(t *testing.T) {
	_, ok := OpenKeyLog("")
	assert.False(t, ok)

	f, ok := OpenKeyLog(filepath.Join(t.TempDir(), "k.log"))
	require.True(t, ok)
	assert.NoError(t, f.Close())
}

func TestNegotiatedParams(t *testing.T) {
	_, ok := NegotiatedParams(tls.ConnectionState{})
	assert.False(t, ok)

	info, ok := NegotiatedParams(tls.ConnectionState{
		HandshakeComplete: true,
		Version:           tls.VersionTLS13,
		CipherSuite:       tls.TLS_AES_128_GCM_SHA256,
	})
	require.True(t, ok)
	assert.Equal(t, TLSInfo{CipherSuite: "TLS_AES_128_GCM_SHA256", Version: "TLS 1.3", KeyBits: 128}, info)
	assert.Equal(t, "cipher=TLS_AES_128_GCM_SHA256 proto=TLS 1.3 bits=128", info.String())
}

func TestCipherKeyBits(t *testing.T) {
	tests := map[string]int{
		"TLS_AES_128_GCM_SHA256":                        128,
		"TLS_AES_256_GCM_SHA384":                        256,
		"TLS_CHACHA20_POLY1305_SHA256":                  256,
		"TLS_ECDHE_RSA_WITH_3DES_EDE_CBC_SHA":           168,
		"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384":       256,
		"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256": 256,
		"0x1234": 0,
	}
	for name, want := range tests {
		assert.Equal(t, want, cipherKeyBits(name), name)
	}
}
