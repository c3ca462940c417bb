package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// DefaultPort is the default relay port.
const DefaultPort = 8443

// TLSConfig holds configuration for relay TLS connections.
type TLSConfig struct {
	// Certificate is the TLS certificate for this endpoint.
	// Mandatory for servers unless GetCertificate is set; optional for clients.
	Certificate tls.Certificate

	// GetCertificate, when set, supplies the server certificate per handshake.
	// Used with CertReloader so renewed certificates apply without a restart.
	GetCertificate func(*tls.ClientHelloInfo) (*tls.Certificate, error)

	// RootCAs is the pool of trusted CAs a client verifies the server against.
	// Nil means the system pool.
	RootCAs *x509.CertPool

	// ClientCAs is the pool used by the server to verify client certificates.
	ClientCAs *x509.CertPool

	// RequireClientCert turns on mutual TLS on the server.
	RequireClientCert bool

	// ServerName is the expected server name for client connections.
	ServerName string

	// InsecureSkipVerify disables certificate verification.
	// Only for testing - never use in production!
	InsecureSkipVerify bool

	// MinVersion defaults to TLS 1.2, which every client the relay has to
	// serve supports.
	MinVersion uint16
}

func (cfg *TLSConfig) minVersion() uint16 {
	if cfg.MinVersion == 0 {
		return tls.VersionTLS12
	}
	return cfg.MinVersion
}

// NewServerTLSConfig creates a TLS configuration for the relay listener.
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if len(cfg.Certificate.Certificate) == 0 && cfg.GetCertificate == nil {
		return nil, fmt.Errorf("server certificate is required")
	}

	tlsConfig := &tls.Config{
		MinVersion:     cfg.minVersion(),
		GetCertificate: cfg.GetCertificate,
		ClientAuth:     tls.NoClientCert,
		ClientCAs:      cfg.ClientCAs,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
	if len(cfg.Certificate.Certificate) > 0 {
		tlsConfig.Certificates = []tls.Certificate{cfg.Certificate}
	}

	if cfg.RequireClientCert {
		if cfg.ClientCAs == nil {
			return nil, fmt.Errorf("client CA pool is required for mutual TLS")
		}
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsConfig, nil
}

// NewClientTLSConfig creates a TLS configuration for a relay client.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}

	tlsConfig := &tls.Config{
		MinVersion:         cfg.minVersion(),
		RootCAs:            cfg.RootCAs,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},
	}
	if len(cfg.Certificate.Certificate) > 0 {
		tlsConfig.Certificates = []tls.Certificate{cfg.Certificate}
	}

	return tlsConfig, nil
}

// LoadKeyPair loads a PEM certificate chain and private key.
func LoadKeyPair(certFile, keyFile string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("load key pair %s/%s: %w", certFile, keyFile, err)
	}
	return cert, nil
}

// LoadCertPool reads a PEM bundle into a new certificate pool.
func LoadCertPool(path string) (*x509.CertPool, error) {
	pemData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pemData) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}
