// Package discovery advertises and finds lineecho servers with mDNS/DNS-SD.
//
// Servers register one instance of _lineecho._tcp in the local. domain.
// The TXT record carries:
//
//	tls=1|0   whether the port expects a TLS handshake
//	v=1       protocol version
//
// Clients browse for the service type and connect to the first resolved
// instance. Addresses reported on several interfaces are merged per
// instance.
package discovery
