// Command lineecho-server accepts line-echo connections over TCP, optionally
// TLS-terminated.
//
// Every line a client sends is answered with "OK <line>". A line reading
// "quit" is answered with "OK bye" and the connection is closed.
//
// Usage:
//
//	lineecho-server [flags]
//
// Flags:
//
//	-config string              YAML or TOML configuration file
//	-host string                Bind address (default "0.0.0.0")
//	-port int                   TCP port (default 8888)
//	-tls                        Enable TLS
//	-cert string                Server certificate (PEM, default $TLS_CERT or server.crt)
//	-key string                 Server private key (PEM, default $TLS_KEY or server.key)
//	-cafile string              CA bundle for optional client certificate verification
//	-require-client-cert        Reject clients without a certificate (needs -cafile)
//	-backlog int                Accept queue length (default 128)
//	-handshake-timeout duration TLS handshake deadline (default 10s, 0 = none)
//	-log-level string           Log level: debug, info, warn, error (default "info")
//	-trace string               Write protocol trace events to this file
//	-advertise                  Announce the server via mDNS
//
// SSLKEYLOGFILE names a key log file for traffic decryption.
//
// Examples:
//
//	# Plain TCP on the default port
//	lineecho-server
//
//	# TLS with certificates from lineecho-certgen
//	lineecho-server -tls -cert certs/server.crt -key certs/server.key -cafile certs/ca.crt
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lineecho/lineecho-go/pkg/config"
	"github.com/lineecho/lineecho-go/pkg/discovery"
	"github.com/lineecho/lineecho-go/pkg/echo"
	"github.com/lineecho/lineecho-go/pkg/log"
	"github.com/lineecho/lineecho-go/pkg/transport"
)

// serverFlags holds raw flag values. Only flags given on the command line
// override the configuration file.
type serverFlags struct {
	ConfigFile        string
	Host              string
	Port              int
	TLS               bool
	Cert              string
	Key               string
	CAFile            string
	RequireClientCert bool
	Backlog           int
	HandshakeTimeout  config.Duration
	LogLevel          string
	TraceFile         string
	Advertise         bool
	Instance          string
}

var flags serverFlags

func init() {
	defaults := config.DefaultServerConfig()

	flag.StringVar(&flags.ConfigFile, "config", "", "YAML or TOML configuration file")
	flag.StringVar(&flags.Host, "host", defaults.Host, "Bind address")
	flag.IntVar(&flags.Port, "port", defaults.Port, "TCP port")
	flag.BoolVar(&flags.TLS, "tls", false, "Enable TLS")
	flag.StringVar(&flags.Cert, "cert", "", "Server certificate (PEM, default $TLS_CERT or server.crt)")
	flag.StringVar(&flags.Key, "key", "", "Server private key (PEM, default $TLS_KEY or server.key)")
	flag.StringVar(&flags.CAFile, "cafile", "", "CA bundle for optional client certificate verification")
	flag.BoolVar(&flags.RequireClientCert, "require-client-cert", false, "Reject clients without a certificate (needs -cafile)")
	flag.IntVar(&flags.Backlog, "backlog", defaults.Backlog, "Accept queue length")
	flag.TextVar(&flags.HandshakeTimeout, "handshake-timeout", defaults.HandshakeTimeout, "TLS handshake deadline (0 = none)")
	flag.StringVar(&flags.LogLevel, "log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&flags.TraceFile, "trace", "", "Write protocol trace events to this file")
	flag.BoolVar(&flags.Advertise, "advertise", false, "Announce the server via mDNS")
	flag.StringVar(&flags.Instance, "instance", "", "mDNS instance name (default lineecho-<hostname>)")
}

func main() {
	flag.Parse()

	cfg, err := config.LoadServer(flags.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(&cfg, &flags, setFlags(flag.CommandLine))
	cfg.ApplyTLSDefaults()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.ServerConfig, logger *slog.Logger) error {
	trace, closeTrace, err := openTrace(cfg.TraceFile, logger)
	if err != nil {
		return err
	}
	defer closeTrace()

	srvConfig := transport.ServerConfig{
		Address:          cfg.Address(),
		Backlog:          cfg.Backlog,
		HandshakeTimeout: cfg.HandshakeTimeout.Std(),
		MaxLineLength:    cfg.MaxLineLength,
		Logger:           logger,
		ProtocolLogger:   trace,
		Handler: echo.NewHandler(
			echo.WithLogger(logger),
			echo.WithProtocolLogger(trace),
		),
	}

	if cfg.TLS.Enabled {
		tlsCtx, err := transport.NewServerContext(cfg.TransportTLS())
		if err != nil {
			return err
		}
		defer tlsCtx.Close()

		srvConfig.TLS = tlsCtx
		logger.Info("TLS enabled",
			"cert", cfg.TLS.Cert,
			"client_auth", tlsCtx.ClientAuth().String(),
			"keylog", tlsCtx.KeyLogging())
	}

	srv, err := transport.NewServer(srvConfig)
	if err != nil {
		return err
	}
	if err := srv.Bind(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Advertise {
		adv, err := advertise(cfg, srv, logger)
		if err != nil {
			// The server is still reachable by address
			logger.Warn("mDNS advertising failed", "error", err)
		} else {
			defer adv.Stop()
		}
	}

	if err := srv.Serve(ctx); err != nil {
		return err
	}
	logger.Info("shutting down", "active_sessions", srv.ConnectionCount())
	return nil
}

func advertise(cfg config.ServerConfig, srv *transport.Server, logger *slog.Logger) (*discovery.Advertiser, error) {
	port, err := boundPort(srv)
	if err != nil {
		return nil, err
	}

	advConfig := discovery.DefaultAdvertiserConfig()
	advConfig.Logger = logger
	adv := discovery.NewAdvertiser(advConfig)

	err = adv.Advertise(discovery.ServiceInfo{
		Instance: cfg.Instance,
		Port:     port,
		TLS:      srv.TLSEnabled(),
	})
	if err != nil {
		return nil, err
	}
	return adv, nil
}

// setFlags returns the names of the flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// applyFlags overlays explicitly set flags onto cfg.
func applyFlags(cfg *config.ServerConfig, f *serverFlags, set map[string]bool) {
	if set["host"] {
		cfg.Host = f.Host
	}
	if set["port"] {
		cfg.Port = f.Port
	}
	if set["tls"] {
		cfg.TLS.Enabled = f.TLS
	}
	if set["cert"] {
		cfg.TLS.Cert = f.Cert
	}
	if set["key"] {
		cfg.TLS.Key = f.Key
	}
	if set["cafile"] {
		cfg.TLS.CAFile = f.CAFile
	}
	if set["require-client-cert"] {
		cfg.TLS.RequireClientCert = f.RequireClientCert
	}
	if set["backlog"] {
		cfg.Backlog = f.Backlog
	}
	if set["handshake-timeout"] {
		cfg.HandshakeTimeout = f.HandshakeTimeout
	}
	if set["log-level"] {
		cfg.LogLevel = f.LogLevel
	}
	if set["trace"] {
		cfg.TraceFile = f.TraceFile
	}
	if set["advertise"] {
		cfg.Advertise = f.Advertise
	}
	if set["instance"] {
		cfg.Instance = f.Instance
	}
}

func newLogger(level string) *slog.Logger {
	// Validate already rejected unknown levels
	lvl, _ := config.ParseLogLevel(level)
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// openTrace opens the protocol trace file. At debug level events are also
// mirrored to the operational log.
func openTrace(path string, logger *slog.Logger) (log.Logger, func(), error) {
	var loggers []log.Logger
	closeFn := func() {}

	if path != "" {
		fl, err := log.NewFileLogger(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create trace file: %w", err)
		}
		loggers = append(loggers, fl)
		closeFn = func() {
			if dropped := fl.Dropped(); dropped > 0 {
				logger.Warn("trace events dropped", "count", dropped)
			}
			_ = fl.Close()
		}
		logger.Info("tracing protocol events", "file", path)
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	if len(loggers) == 0 {
		return log.NoopLogger{}, closeFn, nil
	}
	return log.NewMultiLogger(loggers...), closeFn, nil
}
