package discovery

import (
	"context"
	"time"
)

// Browser finds relays on the local network.
type Browser interface {
	// Browse streams relays as they are found. Addresses seen for the
	// same instance on several interfaces are merged into one result.
	// The channel is closed when ctx is done.
	Browse(ctx context.Context) (<-chan *RelayService, error)

	// Find returns the relay with the given instance name, or the first
	// relay found when name is empty.
	Find(ctx context.Context, name string) (*RelayService, error)

	// Stop stops all active browsing operations.
	Stop()
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout is the default timeout for browse operations.
	// Default: 5 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
		Interface:     "",
	}
}

// ServiceEntry is a resolved DNS-SD entry, independent of the mDNS
// library so that conversion can be tested without a network.
type ServiceEntry struct {
	Instance string
	Service  string
	Domain   string
	Host     string
	Port     uint16
	Text     []string
	Addrs    []string
}

// ToRelayService converts a ServiceEntry to a RelayService.
func (e *ServiceEntry) ToRelayService() (*RelayService, error) {
	info, err := DecodeRelayTXT(StringsToTXTRecords(e.Text))
	if err != nil {
		return nil, err
	}

	return &RelayService{
		InstanceName: e.Instance,
		Host:         e.Host,
		Port:         e.Port,
		Addresses:    append([]string(nil), e.Addrs...),
		Version:      info.Version,
		Fingerprint:  info.Fingerprint,
		MutualTLS:    info.MutualTLS,
		Device:       info.Device,
	}, nil
}

// Dial returns a host:port suitable for net.Dial, preferring the first
// advertised address over the host name.
func (s *RelayService) Dial() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	port := s.Port
	if port == 0 {
		port = DefaultPort
	}
	return joinHostPort(host, port)
}
