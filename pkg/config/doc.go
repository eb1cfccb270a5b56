// Package config holds the server and client settings of the lineecho
// commands.
//
// Settings are layered: built-in defaults, then an optional YAML or TOML
// file (chosen by extension), then environment variables, then command-line
// flags applied by the caller. Validate reports every problem at once.
//
// Environment variables:
//
//	TLS_CERT       server certificate (PEM)
//	TLS_KEY        server private key (PEM)
//	SSLKEYLOGFILE  NSS key log sink for debugging captures
package config
