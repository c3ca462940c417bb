// Package discovery implements mDNS/DNS-SD discovery of relay servers.
//
// A relay advertises one instance of the _actrelay._tcp service on the
// port it listens on. TXT records carry:
//
//	ver   protocol version
//	fp    first 64 bits of SHA-256 over the server certificate (hex)
//	mtls  "1" when the relay requires client certificates
//	dev   the actuator device name (optional)
//
// Clients browse for the service and may compare fp against the
// certificate they are given during the TLS handshake.
package discovery
