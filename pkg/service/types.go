package service

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/actuator-relay/relay-go/pkg/discovery"
	"github.com/actuator-relay/relay-go/pkg/dispatch"
	"github.com/actuator-relay/relay-go/pkg/log"
	"github.com/actuator-relay/relay-go/pkg/transport"
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateRunning - service is accepting connections.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// ServiceConfig configures a RelayService.
type ServiceConfig struct {
	// ListenAddress is the address to listen on (e.g., ":8443").
	ListenAddress string

	// TLS holds the server certificate and client authentication settings.
	TLS *transport.TLSConfig

	// QueueSize bounds the dispatch queue (default: 64).
	QueueSize int

	// HandshakeTimeout bounds each TLS handshake (default: 10s).
	HandshakeTimeout time.Duration

	// IdleTimeout closes sessions that send nothing for this long.
	// Zero disables it.
	IdleTimeout time.Duration

	// ShutdownTimeout is how long Stop waits for sessions to finish
	// their current command before closing them (default: 5s).
	ShutdownTimeout time.Duration

	// Advertise enables mDNS advertisement of the relay.
	Advertise bool

	// InstanceName is the mDNS instance name (default: derived from host name).
	InstanceName string

	// Advertiser overrides the mDNS advertiser (optional, for tests).
	Advertiser discovery.Advertiser

	// Logger is the optional logger for operational output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger records frames, commands and dispatch outcomes (optional).
	ProtocolLogger log.Logger
}

// DefaultServiceConfig returns a ServiceConfig with sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		ListenAddress:    fmt.Sprintf(":%d", transport.DefaultPort),
		QueueSize:        dispatch.DefaultQueueSize,
		HandshakeTimeout: transport.DefaultHandshakeTimeout,
		ShutdownTimeout:  5 * time.Second,
	}
}

// Validate checks if the service config is valid.
func (c *ServiceConfig) Validate() error {
	if c.TLS == nil {
		return fmt.Errorf("%w: TLS configuration is required", ErrInvalidConfig)
	}
	if c.QueueSize < 0 {
		return fmt.Errorf("%w: negative queue size", ErrInvalidConfig)
	}
	if c.HandshakeTimeout < 0 || c.IdleTimeout < 0 || c.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	if c.InstanceName != "" {
		if err := discovery.ValidateInstanceName(c.InstanceName); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}
