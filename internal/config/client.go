package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/actuator-relay/relay-go/pkg/transport"
)

// Client flag names.
const (
	FlagServer     = "server"
	FlagCA         = "ca"
	FlagClientCert = "client-cert"
	FlagClientKey  = "client-key"
	FlagServerName = "server-name"
	FlagTimeout    = "timeout"
	FlagInsecure   = "insecure"
)

// ClientConfig holds relay-client configuration.
type ClientConfig struct {
	// Server is host:port. Empty means discover via mDNS.
	Server     string
	CAFile     string
	CertFile   string
	KeyFile    string
	ServerName string
	Timeout    time.Duration
	Insecure   bool
}

// DefaultClientConfig returns a ClientConfig with default values.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout: 5 * time.Second,
	}
}

// Validate checks the client configuration for errors.
func (c *ClientConfig) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return fmt.Errorf("%w: client certificate and key must be given together", ErrInvalid)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalid)
	}
	return nil
}

// TLS builds the transport TLS settings.
func (c *ClientConfig) TLS() (*transport.TLSConfig, error) {
	tc := &transport.TLSConfig{
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.Insecure,
	}
	if c.CAFile != "" {
		pool, err := transport.LoadCertPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		tc.RootCAs = pool
	}
	if c.CertFile != "" {
		cert, err := transport.LoadKeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, err
		}
		tc.Certificate = cert
	}
	return tc, nil
}

// ApplyClientEnv applies SERVER_IP, SERVER_PORT and SSL_CERT_PATH (the
// certificate to trust) plus RELAY_* client variables.
func ApplyClientEnv(cfg *ClientConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	if ip, port := os.Getenv("SERVER_IP"), os.Getenv("SERVER_PORT"); ip != "" && !s.changed[FlagServer] {
		if port == "" {
			port = fmt.Sprint(transport.DefaultPort)
		}
		cfg.Server = net.JoinHostPort(ip, port)
	}
	s.setString(FlagServer, os.Getenv("RELAY_SERVER"), &cfg.Server)

	s.setString(FlagCA, os.Getenv("SSL_CERT_PATH"), &cfg.CAFile)
	s.setString(FlagCA, os.Getenv("RELAY_CA"), &cfg.CAFile)
	s.setString(FlagClientCert, os.Getenv("RELAY_CLIENT_CERT"), &cfg.CertFile)
	s.setString(FlagClientKey, os.Getenv("RELAY_CLIENT_KEY"), &cfg.KeyFile)
	s.setString(FlagServerName, os.Getenv("RELAY_SERVER_NAME"), &cfg.ServerName)
	if err := s.setDuration(FlagTimeout, os.Getenv("RELAY_TIMEOUT"), &cfg.Timeout); err != nil {
		return err
	}
	s.setBoolFromString(FlagInsecure, os.Getenv("RELAY_INSECURE"), &cfg.Insecure)
	return nil
}
