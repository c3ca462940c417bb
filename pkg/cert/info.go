package cert

import (
	"crypto/x509"
	"time"
)

// Info is a human-readable summary of a certificate.
type Info struct {
	CommonName string
	Issuer     string
	NotBefore  time.Time
	NotAfter   time.Time
	IsCA       bool
	DNSNames   []string
	IPs        []string
	ClientAuth bool
	ServerAuth bool
}

// GetInfo summarizes cert. It returns nil for a nil certificate.
func GetInfo(cert *x509.Certificate) *Info {
	if cert == nil {
		return nil
	}

	info := &Info{
		CommonName: cert.Subject.CommonName,
		Issuer:     cert.Issuer.CommonName,
		NotBefore:  cert.NotBefore,
		NotAfter:   cert.NotAfter,
		IsCA:       cert.IsCA,
		DNSNames:   cert.DNSNames,
	}
	for _, ip := range cert.IPAddresses {
		info.IPs = append(info.IPs, ip.String())
	}
	for _, u := range cert.ExtKeyUsage {
		switch u {
		case x509.ExtKeyUsageClientAuth:
			info.ClientAuth = true
		case x509.ExtKeyUsageServerAuth:
			info.ServerAuth = true
		}
	}
	return info
}

// IsExpired reports whether the certificate is outside its validity at now.
func (i *Info) IsExpired(now time.Time) bool {
	return now.After(i.NotAfter) || now.Before(i.NotBefore)
}

// NeedsRenewal reports whether expiry is within RenewalWindow of now.
func (i *Info) NeedsRenewal(now time.Time) bool {
	return now.Add(RenewalWindow).After(i.NotAfter)
}
