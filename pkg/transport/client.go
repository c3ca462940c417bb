package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/actuator-relay/relay-go/pkg/log"
)

// DefaultConnectTimeout bounds dial plus handshake when the caller's
// context carries no deadline.
const DefaultConnectTimeout = 30 * time.Second

// ErrConnectionClosed is returned by operations on a closed ClientConn.
var ErrConnectionClosed = errors.New("connection closed")

// ClientConfig configures a relay client.
type ClientConfig struct {
	// TLSConfig contains TLS settings.
	TLSConfig *TLSConfig

	// ConnectTimeout is the connection timeout (default: 30s).
	ConnectTimeout time.Duration

	// ProtocolLogger for protocol capture (optional).
	ProtocolLogger log.Logger
}

// Client is a relay TLS client that connects to a relay server.
type Client struct {
	config  ClientConfig
	tlsConf *tls.Config
}

// NewClient creates a new relay client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.TLSConfig == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}

	tlsConf, err := NewClientTLSConfig(config.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	return &Client{
		config:  config,
		tlsConf: tlsConf,
	}, nil
}

// Connect establishes a connection to the specified address.
func (c *Client) Connect(ctx context.Context, address string) (*ClientConn, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ConnectTimeout)
		defer cancel()
	}

	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	tlsConfig := c.tlsConf
	if tlsConfig.ServerName == "" && !tlsConfig.InsecureSkipVerify {
		host, _, splitErr := net.SplitHostPort(address)
		if splitErr == nil {
			tlsConfig = tlsConfig.Clone()
			tlsConfig.ServerName = host
		}
	}

	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	connID := uuid.New().String()
	framer := NewFramer(tlsConn)
	framer.SetLogger(c.config.ProtocolLogger, connID)

	return &ClientConn{
		conn:     tlsConn,
		framer:   framer,
		tlsState: tlsConn.ConnectionState(),
		connID:   connID,
		closeCh:  make(chan struct{}),
	}, nil
}

// ClientConn represents a connection from client to server.
type ClientConn struct {
	conn     *tls.Conn
	framer   *Framer
	tlsState tls.ConnectionState
	connID   string
	closeCh  chan struct{}

	closeOnce sync.Once
	readMu    sync.Mutex
}

// ID returns the identifier used for this connection in protocol logs.
func (c *ClientConn) ID() string {
	return c.connID
}

// TLSState returns the TLS connection state.
func (c *ClientConn) TLSState() tls.ConnectionState {
	return c.tlsState
}

// LocalAddr returns the local network address.
func (c *ClientConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *ClientConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send sends one frame to the server.
func (c *ClientConn) Send(data []byte) error {
	select {
	case <-c.closeCh:
		return ErrConnectionClosed
	default:
	}
	return c.framer.WriteFrame(data)
}

// Receive receives a frame from the server. A zero timeout blocks.
func (c *ClientConn) Receive(timeout time.Duration) ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	select {
	case <-c.closeCh:
		return nil, ErrConnectionClosed
	default:
	}

	if timeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(timeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	return c.framer.ReadFrame()
}

// Request sends data and waits for the next response frame.
func (c *ClientConn) Request(data []byte, timeout time.Duration) ([]byte, error) {
	if err := c.Send(data); err != nil {
		return nil, err
	}
	return c.Receive(timeout)
}

// Close closes the connection.
func (c *ClientConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}
