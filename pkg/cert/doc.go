// Package cert issues and stores the certificates a relay deployment
// needs: a private CA, the relay server certificate and, for mutual TLS,
// client certificates. It is meant for small installations that do not
// have a PKI of their own.
package cert
