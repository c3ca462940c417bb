// Package config loads relay-server and relay-client settings from flags,
// environment variables, a .env file and an optional YAML or TOML file.
//
// Precedence is flags > environment > config file > defaults. Flags win
// only when they were set explicitly, which callers report through the
// changed map (names of pflag flags that were visited).
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/actuator-relay/relay-go/pkg/device"
	"github.com/actuator-relay/relay-go/pkg/discovery"
	"github.com/actuator-relay/relay-go/pkg/dispatch"
	"github.com/actuator-relay/relay-go/pkg/transport"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Flag names shared by the commands and the setters below.
const (
	FlagListen            = "listen"
	FlagCert              = "cert"
	FlagKey               = "key"
	FlagClientCA          = "client-ca"
	FlagRequireClientCert = "require-client-cert"
	FlagSerialPort        = "serial-port"
	FlagBaudRate          = "baud"
	FlagDataBits          = "data-bits"
	FlagParity            = "parity"
	FlagStopBits          = "stop-bits"
	FlagQueueSize         = "queue-size"
	FlagHandshakeTimeout  = "handshake-timeout"
	FlagIdleTimeout       = "idle-timeout"
	FlagShutdownTimeout   = "shutdown-timeout"
	FlagLogLevel          = "log-level"
	FlagLogFormat         = "log-format"
	FlagProtocolLog       = "protocol-log"
	FlagAdvertise         = "advertise"
	FlagInstanceName      = "instance-name"
	FlagReloadCerts       = "reload-certs"
	FlagDryRun            = "dry-run"
)

// Config holds relay-server configuration.
type Config struct {
	ListenAddress string

	CertFile          string
	KeyFile           string
	ClientCAFile      string
	RequireClientCert bool
	ReloadCerts       bool

	SerialPort string
	BaudRate   int
	DataBits   int
	Parity     string
	StopBits   string
	DryRun     bool

	QueueSize        int
	HandshakeTimeout time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration

	LogLevel    string
	LogFormat   string
	ProtocolLog string

	Advertise    bool
	InstanceName string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		ListenAddress:    fmt.Sprintf(":%d", transport.DefaultPort),
		BaudRate:         device.DefaultBaudRate,
		DataBits:         device.DefaultDataBits,
		Parity:           device.DefaultParity,
		StopBits:         device.DefaultStopBits,
		QueueSize:        dispatch.DefaultQueueSize,
		HandshakeTimeout: transport.DefaultHandshakeTimeout,
		ShutdownTimeout:  5 * time.Second,
		LogLevel:         "info",
		LogFormat:        "console",
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.CertFile == "" || c.KeyFile == "" {
		return fmt.Errorf("%w: certificate and key are required", ErrInvalid)
	}
	if c.RequireClientCert && c.ClientCAFile == "" {
		return fmt.Errorf("%w: client CA is required for mutual TLS", ErrInvalid)
	}
	if _, _, err := net.SplitHostPort(c.ListenAddress); err != nil {
		return fmt.Errorf("%w: listen address %q: %w", ErrInvalid, c.ListenAddress, err)
	}
	if c.SerialPort == "" && !c.DryRun {
		return fmt.Errorf("%w: serial port is required (or --%s)", ErrInvalid, FlagDryRun)
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("%w: baud rate must be positive", ErrInvalid)
	}
	if _, err := c.Serial().Mode(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue size must be positive", ErrInvalid)
	}
	if c.HandshakeTimeout <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: handshake and shutdown timeouts must be positive", ErrInvalid)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("%w: idle timeout must not be negative", ErrInvalid)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalid, c.LogFormat)
	}
	if c.InstanceName != "" {
		if err := discovery.ValidateInstanceName(c.InstanceName); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}
	}
	return nil
}

// Serial returns the serial port settings.
func (c *Config) Serial() device.SerialConfig {
	return device.SerialConfig{
		Port:     c.SerialPort,
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   c.Parity,
		StopBits: c.StopBits,
	}
}

// configSetter applies values from a lower-precedence source, skipping
// fields whose flag was set explicitly.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	if changed == nil {
		changed = map[string]bool{}
	}
	return &configSetter{changed: changed}
}

func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true", "1" and "yes" as true.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		*dst = true
	default:
		*dst = false
	}
}
