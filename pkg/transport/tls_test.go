package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// generateTestCertificate creates a self-signed certificate valid for
// localhost and 127.0.0.1.
func generateTestCertificate(t *testing.T) (tls.Certificate, *x509.Certificate) {
	t.Helper()
	return generateNamedCertificate(t, "relay.test", 1)
}

func generateNamedCertificate(t *testing.T, cn string, serial int64) (tls.Certificate, *x509.Certificate) {
	t.Helper()

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate private key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject: pkix.Name{
			CommonName: cn,
		},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &privateKey.PublicKey, privateKey)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  privateKey,
		Leaf:        cert,
	}, cert
}

// writeKeyPair stores cert as PEM files in dir and returns their paths.
func writeKeyPair(t *testing.T, dir string, cert tls.Certificate) (string, string) {
	t.Helper()

	keyDER, err := x509.MarshalECPrivateKey(cert.PrivateKey.(*ecdsa.PrivateKey))
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}

	certPath := filepath.Join(dir, "server.crt")
	keyPath := filepath.Join(dir, "server.key")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Certificate[0]})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("failed to write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("failed to write key: %v", err)
	}
	return certPath, keyPath
}

func TestNewServerTLSConfig(t *testing.T) {
	cert, _ := generateTestCertificate(t)

	tlsConfig, err := NewServerTLSConfig(&TLSConfig{Certificate: cert})
	if err != nil {
		t.Fatalf("NewServerTLSConfig failed: %v", err)
	}

	if tlsConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %d, want TLS 1.2 (%d)", tlsConfig.MinVersion, tls.VersionTLS12)
	}
	if tlsConfig.ClientAuth != tls.NoClientCert {
		t.Errorf("ClientAuth = %v, want NoClientCert", tlsConfig.ClientAuth)
	}
	if len(tlsConfig.Certificates) != 1 {
		t.Errorf("Certificates = %d, want 1", len(tlsConfig.Certificates))
	}
	if len(tlsConfig.NextProtos) != 0 {
		t.Errorf("NextProtos = %v, want none", tlsConfig.NextProtos)
	}
}

func TestNewServerTLSConfigNoCert(t *testing.T) {
	if _, err := NewServerTLSConfig(&TLSConfig{}); err == nil {
		t.Error("expected error for missing certificate")
	}
	if _, err := NewServerTLSConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewServerTLSConfigGetCertificate(t *testing.T) {
	cert, _ := generateTestCertificate(t)

	tlsConfig, err := NewServerTLSConfig(&TLSConfig{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return &cert, nil },
	})
	if err != nil {
		t.Fatalf("NewServerTLSConfig failed: %v", err)
	}
	if tlsConfig.GetCertificate == nil {
		t.Error("GetCertificate not propagated")
	}
	if len(tlsConfig.Certificates) != 0 {
		t.Errorf("Certificates = %d, want 0", len(tlsConfig.Certificates))
	}
}

func TestNewServerTLSConfigMutual(t *testing.T) {
	cert, leaf := generateTestCertificate(t)

	if _, err := NewServerTLSConfig(&TLSConfig{Certificate: cert, RequireClientCert: true}); err == nil {
		t.Error("expected error for mutual TLS without client CAs")
	}

	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	tlsConfig, err := NewServerTLSConfig(&TLSConfig{
		Certificate:       cert,
		ClientCAs:         pool,
		RequireClientCert: true,
	})
	if err != nil {
		t.Fatalf("NewServerTLSConfig failed: %v", err)
	}
	if tlsConfig.ClientAuth != tls.RequireAndVerifyClientCert {
		t.Errorf("ClientAuth = %v, want RequireAndVerifyClientCert", tlsConfig.ClientAuth)
	}
}

func TestNewServerTLSConfigMinVersionOverride(t *testing.T) {
	cert, _ := generateTestCertificate(t)

	tlsConfig, err := NewServerTLSConfig(&TLSConfig{Certificate: cert, MinVersion: tls.VersionTLS13})
	if err != nil {
		t.Fatalf("NewServerTLSConfig failed: %v", err)
	}
	if tlsConfig.MinVersion != tls.VersionTLS13 {
		t.Errorf("MinVersion = %d, want TLS 1.3", tlsConfig.MinVersion)
	}
}

func TestNewClientTLSConfig(t *testing.T) {
	_, leaf := generateTestCertificate(t)
	pool := x509.NewCertPool()
	pool.AddCert(leaf)

	tlsConfig, err := NewClientTLSConfig(&TLSConfig{RootCAs: pool, ServerName: "localhost"})
	if err != nil {
		t.Fatalf("NewClientTLSConfig failed: %v", err)
	}
	if tlsConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %d, want TLS 1.2", tlsConfig.MinVersion)
	}
	if tlsConfig.RootCAs != pool {
		t.Error("RootCAs not propagated")
	}
	if tlsConfig.ServerName != "localhost" {
		t.Errorf("ServerName = %q, want localhost", tlsConfig.ServerName)
	}
	if len(tlsConfig.Certificates) != 0 {
		t.Errorf("Certificates = %d, want 0", len(tlsConfig.Certificates))
	}
}

func TestLoadKeyPairAndCertPool(t *testing.T) {
	dir := t.TempDir()
	cert, _ := generateTestCertificate(t)
	certPath, keyPath := writeKeyPair(t, dir, cert)

	loaded, err := LoadKeyPair(certPath, keyPath)
	if err != nil {
		t.Fatalf("LoadKeyPair failed: %v", err)
	}
	if len(loaded.Certificate) != 1 {
		t.Errorf("chain length = %d, want 1", len(loaded.Certificate))
	}

	if _, err := LoadCertPool(certPath); err != nil {
		t.Errorf("LoadCertPool failed: %v", err)
	}
	if _, err := LoadCertPool(keyPath); err == nil {
		t.Error("expected error for bundle without certificates")
	}
	if _, err := LoadKeyPair(filepath.Join(dir, "missing.crt"), keyPath); err == nil {
		t.Error("expected error for missing certificate file")
	}
}

func TestDefaultPort(t *testing.T) {
	if DefaultPort != 8443 {
		t.Errorf("DefaultPort = %d, want 8443", DefaultPort)
	}
}
