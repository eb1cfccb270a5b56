package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
)

// MinTLSVersion is the protocol floor for both roles. SSLv2, SSLv3 and
// TLS-level compression are not implemented by crypto/tls at all, so they
// stay disabled without any extra switch.
const MinTLSVersion = tls.VersionTLS12

// DefaultPort is the default lineecho port.
const DefaultPort = 8888

// ServerTLSConfig holds the file inputs for a server TLS context.
type ServerTLSConfig struct {
	// CertFile is the PEM certificate chain presented to clients.
	CertFile string

	// KeyFile is the PEM private key matching CertFile.
	KeyFile string

	// CAFile is an optional PEM bundle used to verify client certificates.
	// When set, clients may present a certificate and it is verified if they
	// do; clients without one are still accepted.
	CAFile string

	// RequireClientCert upgrades client verification to mandatory. Only
	// honoured together with CAFile.
	RequireClientCert bool

	// KeyLogFile receives NSS key log lines for traffic decryption. Debug
	// aid only; failure to open it is ignored.
	KeyLogFile string
}

// ClientTLSConfig holds the inputs for a client TLS context.
type ClientTLSConfig struct {
	// CAFile is an optional PEM bundle. When set, only these roots are
	// trusted; otherwise the platform trust store is used.
	CAFile string

	// Insecure disables certificate and hostname verification entirely.
	// Unsafe for anything but local testing against self-signed servers.
	Insecure bool

	// ServerName overrides the SNI / verification name. Empty means the
	// dialed host is used.
	ServerName string

	// KeyLogFile receives NSS key log lines. Best-effort, as for servers.
	KeyLogFile string
}

// Context is a configured TLS context for one role. A server context is
// built once and reused for every handshake; a client context is used for
// one connection.
type Context struct {
	config *tls.Config
	keyLog *os.File
}

// Config returns the underlying TLS configuration. Callers must not mutate it.
func (c *Context) Config() *tls.Config {
	return c.config
}

// ClientAuth returns the client certificate policy of a server context.
func (c *Context) ClientAuth() tls.ClientAuthType {
	return c.config.ClientAuth
}

// Insecure reports whether peer verification is disabled.
func (c *Context) Insecure() bool {
	return c.config.InsecureSkipVerify
}

// KeyLogging reports whether a key log sink is attached.
func (c *Context) KeyLogging() bool {
	return c.keyLog != nil
}

// Close releases the key log sink, if any. The context must not be used for
// further handshakes afterwards.
func (c *Context) Close() error {
	if c.keyLog == nil {
		return nil
	}
	err := c.keyLog.Close()
	c.keyLog = nil
	return err
}

// NewServerContext creates a TLS context for the server role.
func NewServerContext(cfg ServerTLSConfig) (*Context, error) {
	if cfg.CertFile == "" {
		return nil, &ConfigError{Field: "certificate", Err: ErrMissingCertificate}
	}
	if cfg.KeyFile == "" {
		return nil, &ConfigError{Field: "key", Err: ErrMissingKey}
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, &ConfigError{Field: "certificate", Path: cfg.CertFile, Err: err}
	}

	tlsConfig := &tls.Config{
		MinVersion:   MinTLSVersion,
		Certificates: []tls.Certificate{cert},

		// No client certificate is requested unless a CA bundle is given
		ClientAuth: tls.NoClientCert,
	}

	if cfg.CAFile != "" {
		pool, err := loadCAPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.ClientCAs = pool

		// Opportunistic mutual TLS: verify if presented, never demand
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
		if cfg.RequireClientCert {
			tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
		}
	}

	return newContext(tlsConfig, cfg.KeyLogFile), nil
}

// NewClientContext creates a TLS context for the client role.
func NewClientContext(cfg ClientTLSConfig) (*Context, error) {
	tlsConfig := &tls.Config{
		MinVersion: MinTLSVersion,
		ServerName: cfg.ServerName,
	}

	if cfg.Insecure {
		// For local testing only
		tlsConfig.InsecureSkipVerify = true
		return newContext(tlsConfig, cfg.KeyLogFile), nil
	}

	if cfg.CAFile != "" {
		pool, err := loadCAPool(cfg.CAFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	return newContext(tlsConfig, cfg.KeyLogFile), nil
}

func newContext(tlsConfig *tls.Config, keyLogPath string) *Context {
	ctx := &Context{config: tlsConfig}
	if f, ok := OpenKeyLog(keyLogPath); ok {
		ctx.keyLog = f
		tlsConfig.KeyLogWriter = f
	}
	return ctx
}

func loadCAPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Field: "CA bundle", Path: path, Err: err}
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, &ConfigError{Field: "CA bundle", Path: path, Err: ErrInvalidCABundle}
	}
	return pool, nil
}

// TLSInfo is the negotiated cipher/protocol/key-size triple of a TLS session.
type TLSInfo struct {
	CipherSuite string
	Version     string
	KeyBits     int
}

// String formats the triple for log output.
func (i TLSInfo) String() string {
	return fmt.Sprintf("cipher=%s proto=%s bits=%d", i.CipherSuite, i.Version, i.KeyBits)
}

// NegotiatedParams extracts the negotiated parameters from a connection
// state. It reports false if the handshake has not completed.
func NegotiatedParams(state tls.ConnectionState) (TLSInfo, bool) {
	if !state.HandshakeComplete {
		return TLSInfo{}, false
	}
	name := tls.CipherSuiteName(state.CipherSuite)
	return TLSInfo{
		CipherSuite: name,
		Version:     tls.VersionName(state.Version),
		KeyBits:     cipherKeyBits(name),
	}, true
}

// cipherKeyBits derives the symmetric key size from the suite name.
func cipherKeyBits(name string) int {
	switch {
	case strings.Contains(name, "AES_128"):
		return 128
	case strings.Contains(name, "AES_256"), strings.Contains(name, "CHACHA20"):
		return 256
	case strings.Contains(name, "3DES"):
		return 168
	case strings.Contains(name, "RC4_128"):
		return 128
	default:
		return 0
	}
}
