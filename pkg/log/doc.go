// Package log provides structured protocol tracing for lineecho.
//
// This package defines the Logger interface and Event types that capture
// what happens on each connection: session lifecycle, TLS handshakes,
// every line read or written, and errors. It is separate from operational
// logging (slog); a trace is a complete machine-readable record of the
// traffic that can be replayed with the lineecho-trace tool.
//
// # Basic Usage
//
//	// Development: trace to the console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: write a binary trace file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/lineecho/server.ltrace")
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(console, file)
//
// # Event Types
//
//   - Line: one protocol line in either direction (LineEvent)
//   - State: listener, connection and session transitions (StateChangeEvent)
//   - Handshake: negotiated TLS parameters (HandshakeEvent)
//   - Error: faults at any layer (ErrorEventData)
//
// # File Format
//
// Trace files are a stream of CBOR-encoded events with integer keys,
// conventionally named with the .ltrace extension.
package log
