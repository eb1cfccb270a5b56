// Command lineecho-client connects to a lineecho server and sends lines
// typed on standard input, printing each response.
//
// Usage:
//
//	lineecho-client [flags]
//
// Flags:
//
//	-config string     YAML or TOML configuration file
//	-host string       Server host (default "127.0.0.1")
//	-port int          Server port (default 8888)
//	-tls               Enable TLS
//	-cafile string     CA bundle (PEM) trusted instead of the system roots
//	-insecure          Disable certificate verification (testing only)
//	-sni string        Override the TLS server name
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-trace string      Write protocol trace events to this file
//	-discover          Find the server via mDNS instead of -host/-port
//
// Type "quit" to end the session. Piped input is sent line by line.
//
// Examples:
//
//	# Plain TCP
//	lineecho-client -port 8888
//
//	# TLS against a server signed by a private CA
//	lineecho-client -tls -cafile certs/ca.crt -sni localhost
//
//	# TLS against a self-signed server
//	lineecho-client -tls -insecure
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/lineecho/lineecho-go/pkg/config"
	"github.com/lineecho/lineecho-go/pkg/discovery"
	"github.com/lineecho/lineecho-go/pkg/echo"
	"github.com/lineecho/lineecho-go/pkg/log"
	"github.com/lineecho/lineecho-go/pkg/transport"
)

// clientFlags holds raw flag values. Only flags given on the command line
// override the configuration file.
type clientFlags struct {
	ConfigFile string
	Host       string
	Port       int
	TLS        bool
	CAFile     string
	Insecure   bool
	SNI        string
	LogLevel   string
	TraceFile  string
	Discover   bool
	History    string
}

var flags clientFlags

func init() {
	defaults := config.DefaultClientConfig()

	flag.StringVar(&flags.ConfigFile, "config", "", "YAML or TOML configuration file")
	flag.StringVar(&flags.Host, "host", defaults.Host, "Server host")
	flag.IntVar(&flags.Port, "port", defaults.Port, "Server port")
	flag.BoolVar(&flags.TLS, "tls", false, "Enable TLS")
	flag.StringVar(&flags.CAFile, "cafile", "", "CA bundle (PEM) trusted instead of the system roots")
	flag.BoolVar(&flags.Insecure, "insecure", false, "Disable certificate verification (testing only)")
	flag.StringVar(&flags.SNI, "sni", "", "Override the TLS server name")
	flag.StringVar(&flags.LogLevel, "log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&flags.TraceFile, "trace", "", "Write protocol trace events to this file")
	flag.BoolVar(&flags.Discover, "discover", false, "Find the server via mDNS instead of -host/-port")
	flag.StringVar(&flags.History, "history", "", "Readline history file")
}

func main() {
	flag.Parse()

	cfg, err := config.LoadClient(flags.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	set := setFlags(flag.CommandLine)
	applyFlags(&cfg, &flags, set)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	lvl, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Ctrl-C outside the readline prompt ends the session like one inside it
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, set["tls"], logger)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ClientConfig, tlsExplicit bool, logger *slog.Logger) error {
	if cfg.Discover {
		svc, err := discovery.NewBrowser(discovery.DefaultBrowserConfig()).FindFirst(ctx)
		if err != nil {
			return fmt.Errorf("discovery: %w", err)
		}
		applyService(&cfg, svc, tlsExplicit)
		fmt.Printf("discovered %s at %s\n", svc.Instance, svc.Address())
	}

	var tlsCtx *transport.Context
	if cfg.TLS.Enabled {
		var err error
		tlsCtx, err = transport.NewClientContext(cfg.TransportTLS())
		if err != nil {
			return err
		}
		defer tlsCtx.Close()
		if tlsCtx.Insecure() {
			logger.Warn("certificate verification disabled")
		}
	}

	conn, err := transport.Dial(ctx, cfg.Host, cfg.Port, transport.DialConfig{
		TLS:            tlsCtx,
		ConnectTimeout: cfg.ConnectTimeout.Std(),
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	sni := ""
	if tlsCtx != nil {
		sni = transport.SNIName(cfg.Host, "", tlsCtx.Config().ServerName)
	}
	fmt.Println(connectedBanner(cfg.Host, cfg.Port, sni, conn))

	trace, closeTrace, err := openTrace(cfg.TraceFile, logger)
	if err != nil {
		return err
	}
	defer closeTrace()

	input, output, closeInput, err := openInput(cfg.HistoryFile)
	if err != nil {
		return err
	}
	defer closeInput()

	session := &echo.Interactive{
		Input:          input,
		Output:         output,
		Logger:         logger,
		ProtocolLogger: trace,
	}
	return session.Run(ctx, conn)
}

// connectedBanner describes the established connection. sni is empty for
// plain TCP.
func connectedBanner(host string, port int, sni string, conn transport.Conn) string {
	if sni == "" {
		return fmt.Sprintf("connected to %s:%d", host, port)
	}
	banner := fmt.Sprintf("TLS connected to %s:%d (SNI=%s)", host, port, sni)
	if info, ok := conn.TLSInfo(); ok {
		banner += " " + info.String()
	}
	return banner
}

// applyService points cfg at a discovered server. An explicit -tls flag
// wins over the advertised TLS setting.
func applyService(cfg *config.ClientConfig, svc *discovery.Service, tlsExplicit bool) {
	cfg.Host = svc.DialHost()
	cfg.Port = int(svc.Port)
	if !tlsExplicit {
		cfg.TLS.Enabled = svc.TLS
	}
}

// openInput uses the readline console on a terminal and a plain line
// reader otherwise.
func openInput(historyFile string) (echo.LineSource, io.Writer, func(), error) {
	if !readline.IsTerminal(int(os.Stdin.Fd())) {
		return echo.NewReaderSource(os.Stdin), os.Stdout, func() {}, nil
	}

	console, err := echo.NewConsole(echo.ConsoleConfig{HistoryFile: historyFile})
	if err != nil {
		return nil, nil, nil, err
	}
	return console, console.Stdout(), func() { _ = console.Close() }, nil
}

// setFlags returns the names of the flags given on the command line.
func setFlags(fs *flag.FlagSet) map[string]bool {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return set
}

// applyFlags overlays explicitly set flags onto cfg.
func applyFlags(cfg *config.ClientConfig, f *clientFlags, set map[string]bool) {
	if set["host"] {
		cfg.Host = f.Host
	}
	if set["port"] {
		cfg.Port = f.Port
	}
	if set["tls"] {
		cfg.TLS.Enabled = f.TLS
	}
	if set["cafile"] {
		cfg.TLS.CAFile = f.CAFile
	}
	if set["insecure"] {
		cfg.TLS.Insecure = f.Insecure
	}
	if set["sni"] {
		cfg.TLS.ServerName = f.SNI
	}
	if set["log-level"] {
		cfg.LogLevel = f.LogLevel
	}
	if set["trace"] {
		cfg.TraceFile = f.TraceFile
	}
	if set["discover"] {
		cfg.Discover = f.Discover
	}
	if set["history"] {
		cfg.HistoryFile = f.History
	}
}

// openTrace opens the protocol trace file, or returns a no-op logger.
func openTrace(path string, logger *slog.Logger) (log.Logger, func(), error) {
	if path == "" {
		return log.NoopLogger{}, func() {}, nil
	}
	fl, err := log.NewFileLogger(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	logger.Debug("tracing protocol events", "file", path)
	return fl, func() {
		if dropped := fl.Dropped(); dropped > 0 {
			logger.Warn("trace events dropped", "count", dropped)
		}
		_ = fl.Close()
	}, nil
}
