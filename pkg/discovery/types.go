package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of a lineecho server.
	ServiceType = "_lineecho._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// ProtocolVersion is advertised in the TXT record.
	ProtocolVersion = "1"

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyTLS     = "tls"
	TXTKeyVersion = "v"
)

// Errors.
var (
	ErrNotFound        = errors.New("service not found")
	ErrMissingRequired = errors.New("missing required TXT field")
	ErrInvalidTXT      = errors.New("invalid TXT value")
	ErrInvalidPort     = errors.New("invalid port")
	ErrNotAdvertising  = errors.New("not advertising")
)

// ServiceInfo is what a server advertises.
type ServiceInfo struct {
	// Instance is the human-readable instance name. Empty means
	// "lineecho-<hostname>".
	Instance string

	// Port the server listens on.
	Port uint16

	// TLS reports whether connections must start with a TLS handshake.
	TLS bool
}

// Service is a resolved server instance.
type Service struct {
	Instance  string
	Host      string
	Port      uint16
	Addresses []string
	TLS       bool
	Version   string

	// Seen is when the instance was first resolved.
	Seen time.Time
}

// DialHost returns the host to dial: the first IPv4 address, then any
// address, then the advertised host name.
func (s *Service) DialHost() string {
	for _, a := range s.Addresses {
		if ip := net.ParseIP(a); ip != nil && ip.To4() != nil {
			return a
		}
	}
	if len(s.Addresses) > 0 {
		return s.Addresses[0]
	}
	return s.Host
}

// Address returns host:port for DialHost.
func (s *Service) Address() string {
	return net.JoinHostPort(s.DialHost(), strconv.Itoa(int(s.Port)))
}

// ServiceEntry is a raw resolved DNS-SD entry, independent of the mDNS
// library.
type ServiceEntry struct {
	Instance string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToService converts the entry, validating its TXT record.
func (e *ServiceEntry) ToService() (*Service, error) {
	if e.Port == 0 {
		return nil, ErrInvalidPort
	}
	info, version, err := DecodeTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}
	addrs := make([]string, len(e.Addrs))
	copy(addrs, e.Addrs)
	return &Service{
		Instance:  e.Instance,
		Host:      e.Host,
		Port:      e.Port,
		Addresses: addrs,
		TLS:       info.TLS,
		Version:   version,
		Seen:      time.Now(),
	}, nil
}
