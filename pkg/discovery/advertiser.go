package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface restricts announcements to one network interface.
	// Empty means all interfaces.
	Interface string

	// TTL is the DNS record TTL (default: 120 seconds).
	TTL time.Duration

	// Logger for operational logs (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: 120 * time.Second}
}

// Advertiser announces one lineecho server instance.
type Advertiser struct {
	config AdvertiserConfig
	logger *slog.Logger

	mu     sync.Mutex
	server *zeroconf.Server
	info   ServiceInfo
}

// NewAdvertiser creates an advertiser. Nothing is announced until Advertise.
func NewAdvertiser(config AdvertiserConfig) *Advertiser {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Advertiser{
		config: config,
		logger: logger.With("component", "discovery"),
	}
}

// Advertise registers info, replacing any earlier registration.
func (a *Advertiser) Advertise(info ServiceInfo) error {
	if info.Port == 0 {
		return ErrInvalidPort
	}
	if info.Instance == "" {
		info.Instance = DefaultInstanceName()
	}
	if len(info.Instance) > MaxInstanceNameLen {
		info.Instance = info.Instance[:MaxInstanceNameLen]
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		info.Instance,
		ServiceType,
		Domain,
		int(info.Port),
		TXTRecordsToStrings(EncodeTXT(&info)),
		a.interfaces(),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	a.server = server
	a.info = info
	a.logger.Info("advertising", "instance", info.Instance, "service", ServiceType, "port", info.Port, "tls", info.TLS)
	return nil
}

// Update replaces the TXT record of the running registration.
func (a *Advertiser) Update(info ServiceInfo) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotAdvertising
	}
	a.server.SetText(TXTRecordsToStrings(EncodeTXT(&info)))
	a.info.TLS = info.TLS
	return nil
}

// Advertising reports whether a registration is active.
func (a *Advertiser) Advertising() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Stop withdraws the registration. Safe to call when not advertising.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
		a.logger.Info("advertising stopped", "instance", a.info.Instance)
	}
}

// interfaces returns the interfaces to announce on; nil means all.
func (a *Advertiser) interfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		a.logger.Warn("unknown interface, using all", "interface", a.config.Interface, "error", err)
		return nil
	}
	return []net.Interface{*iface}
}

// DefaultInstanceName returns "lineecho-<hostname>".
func DefaultInstanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "lineecho"
	}
	return "lineecho-" + host
}
