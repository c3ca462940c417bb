package discovery

import (
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
)

// CertificateFingerprint returns the first 64 bits (16 hex chars) of
// SHA-256 over the certificate DER.
func CertificateFingerprint(cert *x509.Certificate) string {
	return FingerprintFromDER(cert.Raw)
}

// FingerprintFromDER returns the fingerprint of raw certificate DER bytes.
func FingerprintFromDER(certDER []byte) string {
	hash := sha256.Sum256(certDER)
	return hex.EncodeToString(hash[:8])
}

// ValidateFingerprint checks that fp is 16 hex characters.
func ValidateFingerprint(fp string) bool {
	if len(fp) != FingerprintLength {
		return false
	}
	_, err := hex.DecodeString(fp)
	return err == nil
}
