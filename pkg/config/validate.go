package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Validation errors.
var (
	ErrInvalidPort     = errors.New("port out of range")
	ErrInvalidLogLevel = errors.New("unknown log level")
	ErrFileNotFound    = errors.New("file not found")
	ErrInvalidValue    = errors.New("invalid value")
)

// FieldError names the setting a validation error belongs to.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// Validate checks the server settings. All problems are returned together
// as a *multierror.Error.
func (c ServerConfig) Validate() error {
	var errs error
	// Port 0 asks the kernel for an ephemeral port
	errs = appendPort(errs, c.Port, true)
	errs = appendLogLevel(errs, c.LogLevel)
	if c.Backlog <= 0 {
		errs = multierror.Append(errs, &FieldError{"backlog", ErrInvalidValue})
	}
	if c.MaxLineLength < 0 {
		errs = multierror.Append(errs, &FieldError{"max_line_length", ErrInvalidValue})
	}
	if c.HandshakeTimeout < 0 {
		errs = multierror.Append(errs, &FieldError{"handshake_timeout", ErrInvalidValue})
	}
	if c.TLS.Enabled {
		errs = appendFile(errs, "tls.cert", c.TLS.Cert, true)
		errs = appendFile(errs, "tls.key", c.TLS.Key, true)
		errs = appendFile(errs, "tls.cafile", c.TLS.CAFile, false)
		if c.TLS.RequireClientCert && c.TLS.CAFile == "" {
			errs = multierror.Append(errs, &FieldError{"tls.require_client_cert",
				fmt.Errorf("%w: needs tls.cafile", ErrInvalidValue)})
		}
	}
	return errs
}

// Validate checks the client settings.
func (c ClientConfig) Validate() error {
	var errs error
	if !c.Discover {
		errs = appendPort(errs, c.Port, false)
		if c.Host == "" {
			errs = multierror.Append(errs, &FieldError{"host", ErrInvalidValue})
		}
	}
	errs = appendLogLevel(errs, c.LogLevel)
	if c.ConnectTimeout < 0 {
		errs = multierror.Append(errs, &FieldError{"connect_timeout", ErrInvalidValue})
	}
	if c.TLS.Enabled && !c.TLS.Insecure {
		errs = appendFile(errs, "tls.cafile", c.TLS.CAFile, false)
	}
	return errs
}

func appendPort(errs error, port int, allowZero bool) error {
	if port < 0 || port > 65535 || (port == 0 && !allowZero) {
		return multierror.Append(errs, &FieldError{"port", fmt.Errorf("%w: %d", ErrInvalidPort, port)})
	}
	return errs
}

func appendLogLevel(errs error, level string) error {
	if _, err := ParseLogLevel(level); err != nil {
		return multierror.Append(errs, &FieldError{"log_level", err})
	}
	return errs
}

func appendFile(errs error, field, path string, required bool) error {
	if path == "" {
		if required {
			return multierror.Append(errs, &FieldError{field, fmt.Errorf("%w: empty path", ErrFileNotFound)})
		}
		return errs
	}
	if _, err := os.Stat(path); err != nil {
		return multierror.Append(errs, &FieldError{field, fmt.Errorf("%w: %s", ErrFileNotFound, path)})
	}
	return errs
}

// ParseLogLevel maps debug, info, warn and error to slog levels. An empty
// string means info.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrInvalidLogLevel, s)
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
