package discovery

import (
	"context"
	"time"
)

// Advertiser announces a relay on the local network.
type Advertiser interface {
	// Advertise starts advertising the relay, replacing any previous
	// advertisement.
	Advertise(ctx context.Context, info *RelayInfo) error

	// Update replaces the TXT records of the current advertisement.
	Update(info *RelayInfo) error

	// Stop withdraws the advertisement.
	Stop() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       DefaultTTL,
	}
}
