package transport

import (
	"crypto/tls"
	"net"
	"time"
)

// ServerConnection is what a session needs from an accepted connection.
// Implemented by ServerConn.
type ServerConnection interface {
	// ID returns the unique connection identifier.
	ID() string

	// RemoteAddr returns the remote network address of the client.
	RemoteAddr() net.Addr

	// ReadFrame blocks for the next frame from the client.
	ReadFrame() ([]byte, error)

	// Send sends a frame to the client.
	Send(data []byte) error

	// SetReadDeadline sets the deadline for the next ReadFrame.
	SetReadDeadline(t time.Time) error

	// Interrupt unblocks a pending ReadFrame.
	Interrupt() error

	// Close closes the connection.
	Close() error
}

// ClientConnection is the client side of a relay connection.
// Implemented by ClientConn; relay-client tests substitute their own.
type ClientConnection interface {
	// TLSState returns the TLS connection state.
	TLSState() tls.ConnectionState

	// LocalAddr returns the local network address.
	LocalAddr() net.Addr

	// RemoteAddr returns the remote network address.
	RemoteAddr() net.Addr

	// Send sends a frame to the server.
	Send(data []byte) error

	// Receive receives a frame with the specified timeout.
	Receive(timeout time.Duration) ([]byte, error)

	// Request sends a frame and waits for the response frame.
	Request(data []byte, timeout time.Duration) ([]byte, error)

	// Close closes the connection.
	Close() error
}

// Compile-time interface satisfaction checks.
var (
	_ ServerConnection = (*ServerConn)(nil)
	_ ClientConnection = (*ClientConn)(nil)
)
