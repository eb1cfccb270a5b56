package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/lineecho/lineecho-go/pkg/transport"
)

// Environment variable names.
const (
	EnvCert   = "TLS_CERT"
	EnvKey    = "TLS_KEY"
	EnvKeyLog = transport.KeyLogEnv
)

// Defaults.
const (
	DefaultServerHost = "0.0.0.0"
	DefaultClientHost = "127.0.0.1"
	DefaultCertFile   = "server.crt"
	DefaultKeyFile    = "server.key"
	DefaultLogLevel   = "info"
)

// ErrUnsupportedFormat is returned for config files that are neither YAML
// nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// Duration is a time.Duration read from strings like "5s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// ServerTLS holds the server TLS settings.
type ServerTLS struct {
	Enabled           bool   `yaml:"enabled" toml:"enabled"`
	Cert              string `yaml:"cert" toml:"cert"`
	Key               string `yaml:"key" toml:"key"`
	CAFile            string `yaml:"cafile" toml:"cafile"`
	RequireClientCert bool   `yaml:"require_client_cert" toml:"require-client-cert"`
	KeyLogFile        string `yaml:"keylog_file" toml:"keylog-file"`
}

// ServerConfig holds everything lineecho-server needs.
type ServerConfig struct {
	Host             string    `yaml:"host" toml:"host"`
	Port             int       `yaml:"port" toml:"port"`
	TLS              ServerTLS `yaml:"tls" toml:"tls"`
	Backlog          int       `yaml:"backlog" toml:"backlog"`
	HandshakeTimeout Duration  `yaml:"handshake_timeout" toml:"handshake-timeout"`
	MaxLineLength    int       `yaml:"max_line_length" toml:"max-line-length"`
	LogLevel         string    `yaml:"log_level" toml:"log-level"`
	TraceFile        string    `yaml:"trace_file" toml:"trace-file"`
	Advertise        bool      `yaml:"advertise" toml:"advertise"`
	Instance         string    `yaml:"instance" toml:"instance"`
}

// ClientTLS holds the client TLS settings.
type ClientTLS struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	CAFile     string `yaml:"cafile" toml:"cafile"`
	Insecure   bool   `yaml:"insecure" toml:"insecure"`
	ServerName string `yaml:"sni" toml:"sni"`
	KeyLogFile string `yaml:"keylog_file" toml:"keylog-file"`
}

// ClientConfig holds everything lineecho-client needs.
type ClientConfig struct {
	Host           string    `yaml:"host" toml:"host"`
	Port           int       `yaml:"port" toml:"port"`
	TLS            ClientTLS `yaml:"tls" toml:"tls"`
	ConnectTimeout Duration  `yaml:"connect_timeout" toml:"connect-timeout"`
	LogLevel       string    `yaml:"log_level" toml:"log-level"`
	TraceFile      string    `yaml:"trace_file" toml:"trace-file"`
	Discover       bool      `yaml:"discover" toml:"discover"`
	HistoryFile    string    `yaml:"history_file" toml:"history-file"`
}

// DefaultServerConfig returns the server defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:             DefaultServerHost,
		Port:             transport.DefaultPort,
		Backlog:          transport.DefaultBacklog,
		HandshakeTimeout: Duration(transport.DefaultHandshakeTimeout),
		LogLevel:         DefaultLogLevel,
	}
}

// DefaultClientConfig returns the client defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:           DefaultClientHost,
		Port:           transport.DefaultPort,
		ConnectTimeout: Duration(transport.DefaultConnectTimeout),
		LogLevel:       DefaultLogLevel,
	}
}

// LoadServer returns the defaults overlaid with path (if non-empty) and the
// environment.
func LoadServer(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := decodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// LoadClient returns the defaults overlaid with path (if non-empty) and the
// environment.
func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := decodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

func decodeFile(path string, v any) error {
	if path == "" {
		return nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.DecodeFile(path, v); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv fills unset TLS paths from the environment.
func (c *ServerConfig) ApplyEnv(lookup LookupFunc) {
	if v, ok := lookup(EnvCert); ok && c.TLS.Cert == "" {
		c.TLS.Cert = v
	}
	if v, ok := lookup(EnvKey); ok && c.TLS.Key == "" {
		c.TLS.Key = v
	}
	if v, ok := lookup(EnvKeyLog); ok && c.TLS.KeyLogFile == "" {
		c.TLS.KeyLogFile = v
	}
}

// ApplyTLSDefaults sets the default certificate and key paths when TLS is
// enabled and none were given. Call it after flags are applied.
func (c *ServerConfig) ApplyTLSDefaults() {
	if !c.TLS.Enabled {
		return
	}
	if c.TLS.Cert == "" {
		c.TLS.Cert = DefaultCertFile
	}
	if c.TLS.Key == "" {
		c.TLS.Key = DefaultKeyFile
	}
}

// ApplyEnv fills the key log path from the environment.
func (c *ClientConfig) ApplyEnv(lookup LookupFunc) {
	if v, ok := lookup(EnvKeyLog); ok && c.TLS.KeyLogFile == "" {
		c.TLS.KeyLogFile = v
	}
}

// Address returns host:port for listening.
func (c ServerConfig) Address() string {
	return joinHostPort(c.Host, c.Port)
}

// TransportTLS converts the TLS section for transport.NewServerContext.
func (c ServerConfig) TransportTLS() transport.ServerTLSConfig {
	return transport.ServerTLSConfig{
		CertFile:          c.TLS.Cert,
		KeyFile:           c.TLS.Key,
		CAFile:            c.TLS.CAFile,
		RequireClientCert: c.TLS.RequireClientCert,
		KeyLogFile:        c.TLS.KeyLogFile,
	}
}

// TransportTLS converts the TLS section for transport.NewClientContext.
func (c ClientConfig) TransportTLS() transport.ClientTLSConfig {
	return transport.ClientTLSConfig{
		CAFile:     c.TLS.CAFile,
		Insecure:   c.TLS.Insecure,
		ServerName: c.TLS.ServerName,
		KeyLogFile: c.TLS.KeyLogFile,
	}
}
