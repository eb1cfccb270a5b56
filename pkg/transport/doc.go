// Package transport provides the lineecho transport layer.
//
// The transport layer handles:
//   - TLS context construction for the server and client roles
//   - A listening socket with address reuse and a fixed accept backlog
//   - A sequential accept loop with one goroutine per session
//   - Newline-oriented streams over raw TCP or TLS
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│   Line echo ("OK <line>\n")    │
//	├────────────────────────────────┤
//	│   Newline framing (UTF-8)      │
//	├────────────────────────────────┤
//	│   TLS 1.2+ (optional)          │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # TLS Requirements
//
// Both roles negotiate TLS 1.2 or newer. SSLv2, SSLv3 and TLS compression
// do not exist in crypto/tls, so they can never be negotiated.
//
// Server client-certificate policy:
//   - no CA bundle: no certificate is requested
//   - CA bundle: a presented certificate must verify, but clients without
//     one are accepted (opportunistic mutual TLS)
//
// Client verification uses the platform roots, or only the configured CA
// bundle when one is given. Insecure mode skips verification and is meant
// for local testing against self-signed servers only.
//
// # Failure Isolation
//
// A failed handshake closes that connection and the accept loop continues.
// A failing session is logged and closed without affecting other sessions.
// There are no protocol-level timeouts and no drain on shutdown.
package transport
