package discovery

import (
	"errors"
	"time"

	"github.com/actuator-relay/relay-go/pkg/version"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of a relay.
	ServiceType = "_actrelay._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default relay port.
	DefaultPort = 8443

	// ProtocolVersion is advertised in the ver TXT record.
	ProtocolVersion = version.Current
)

// TXT record keys.
const (
	TXTKeyVersion     = "ver"
	TXTKeyFingerprint = "fp"
	TXTKeyMutualTLS   = "mtls"
	TXTKeyDevice      = "dev"
)

// Timing constants.
const (
	// BrowseTimeout is the default timeout for mDNS browsing.
	BrowseTimeout = 5 * time.Second

	// DefaultTTL is the DNS record TTL.
	DefaultTTL = 120 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// FingerprintLength is the hex length of a certificate fingerprint.
	FingerprintLength = 16
)

// Discovery errors.
var (
	ErrNotFound            = errors.New("service not found")
	ErrMissingRequired     = errors.New("missing required TXT record")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrInstanceNameTooLong = errors.New("instance name too long")
)

// RelayInfo is what a relay advertises about itself.
type RelayInfo struct {
	// InstanceName is the DNS-SD instance label.
	InstanceName string

	// Port the relay listens on.
	Port uint16

	// Version of the relay protocol.
	Version string

	// Fingerprint of the server certificate (see CertificateFingerprint).
	Fingerprint string

	// MutualTLS is set when clients must present a certificate.
	MutualTLS bool

	// Device names the actuator device (optional).
	Device string
}

// RelayService is a relay found by browsing.
type RelayService struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	Version     string
	Fingerprint string
	MutualTLS   bool
	Device      string
}
