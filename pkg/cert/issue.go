package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"
)

// Validity periods.
const (
	// CAValidity covers the expected service life of an installation.
	CAValidity = 10 * 365 * 24 * time.Hour

	// LeafValidity is the default lifetime of server and client certificates.
	LeafValidity = 2 * 365 * 24 * time.Hour

	// RenewalWindow is how long before expiry a certificate is reported
	// as due for renewal.
	RenewalWindow = 30 * 24 * time.Hour
)

// Organization is written into every issued subject.
const Organization = "Actuator Relay"

// ErrNotCA is returned when a non-CA certificate is used to issue.
var ErrNotCA = errors.New("certificate is not a CA")

// KeyPair is a certificate with its private key.
type KeyPair struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// TLSCertificate converts the pair for use in a tls.Config.
func (kp *KeyPair) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{kp.Certificate.Raw},
		PrivateKey:  kp.PrivateKey,
		Leaf:        kp.Certificate,
	}
}

// WriteFiles stores the pair as PEM files.
func (kp *KeyPair) WriteFiles(certPath, keyPath string) error {
	if err := WriteCertFile(certPath, kp.Certificate); err != nil {
		return fmt.Errorf("write %s: %w", certPath, err)
	}
	if err := WriteKeyFile(keyPath, kp.PrivateKey); err != nil {
		return fmt.Errorf("write %s: %w", keyPath, err)
	}
	return nil
}

// LoadKeyPair reads a pair written by WriteFiles.
func LoadKeyPair(certPath, keyPath string) (*KeyPair, error) {
	c, err := ReadCertFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", certPath, err)
	}
	k, err := ReadKeyFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", keyPath, err)
	}
	return &KeyPair{Certificate: c, PrivateKey: k}, nil
}

// CertPool returns a pool holding only this certificate.
func (kp *KeyPair) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(kp.Certificate)
	return pool
}

// GenerateCA creates a self-signed CA.
func GenerateCA(commonName string, validity time.Duration) (*KeyPair, error) {
	if validity <= 0 {
		validity = CAValidity
	}
	template := &x509.Certificate{
		Subject:               subject(commonName),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}
	return create(template, nil, validity)
}

// IssueServer issues a relay server certificate for hosts, which may mix
// DNS names and IP addresses.
func (kp *KeyPair) IssueServer(commonName string, hosts []string, validity time.Duration) (*KeyPair, error) {
	template := &x509.Certificate{
		Subject:     subject(commonName),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if h != "" {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
	return kp.issue(template, validity)
}

// IssueClient issues a client certificate for mutual TLS.
func (kp *KeyPair) IssueClient(commonName string, validity time.Duration) (*KeyPair, error) {
	template := &x509.Certificate{
		Subject:     subject(commonName),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	return kp.issue(template, validity)
}

func (kp *KeyPair) issue(template *x509.Certificate, validity time.Duration) (*KeyPair, error) {
	if !kp.Certificate.IsCA {
		return nil, ErrNotCA
	}
	if validity <= 0 {
		validity = LeafValidity
	}
	template.BasicConstraintsValid = true
	return create(template, kp, validity)
}

// create signs template with parent, or self-signs when parent is nil.
func create(template *x509.Certificate, parent *KeyPair, validity time.Duration) (*KeyPair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}
	template.SerialNumber = serial

	now := time.Now()
	template.NotBefore = now.Add(-5 * time.Minute)
	template.NotAfter = now.Add(validity)

	signer, signerKey := template, key
	if parent != nil {
		signer, signerKey = parent.Certificate, parent.PrivateKey
	}

	der, err := x509.CreateCertificate(rand.Reader, template, signer, &key.PublicKey, signerKey)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return &KeyPair{Certificate: c, PrivateKey: key}, nil
}

func subject(commonName string) pkix.Name {
	return pkix.Name{
		CommonName:   commonName,
		Organization: []string{Organization},
	}
}
