package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/actuator-relay/relay-go/pkg/log"
)

// Accept loop back-off bounds for transient accept errors.
const (
	acceptBackoffMin = 5 * time.Millisecond
	acceptBackoffMax = 1 * time.Second

	// DefaultHandshakeTimeout bounds the TLS upgrade of a new connection.
	DefaultHandshakeTimeout = 10 * time.Second
)

// Server errors.
var (
	// ErrHandshake wraps every failed TLS upgrade. The connection is
	// closed and no handler is started for it.
	ErrHandshake = errors.New("TLS handshake failed")

	// ErrServerRunning is returned by Start on a running server.
	ErrServerRunning = errors.New("server already running")
)

// ConnHandler serves one upgraded connection. HandleConn runs in its own
// goroutine and owns conn until it returns.
type ConnHandler interface {
	HandleConn(ctx context.Context, conn *ServerConn)
}

// ConnHandlerFunc adapts a function to ConnHandler.
type ConnHandlerFunc func(ctx context.Context, conn *ServerConn)

// HandleConn calls f(ctx, conn).
func (f ConnHandlerFunc) HandleConn(ctx context.Context, conn *ServerConn) {
	f(ctx, conn)
}

// ServerConfig configures the relay listener.
type ServerConfig struct {
	// TLSConfig contains TLS settings.
	TLSConfig *TLSConfig

	// Address to listen on (e.g., ":8443" or "127.0.0.1:0").
	Address string

	// HandshakeTimeout bounds the TLS handshake (default: 10s).
	HandshakeTimeout time.Duration

	// Handler receives every successfully upgraded connection.
	Handler ConnHandler

	// Logger for operational output (optional).
	Logger *slog.Logger

	// ProtocolLogger for protocol capture (optional).
	ProtocolLogger log.Logger

	// OnError is called for accept and handshake failures. conn is nil
	// when no ServerConn exists yet.
	OnError func(conn *ServerConn, err error)
}

// Server accepts TLS connections and hands each one to the configured
// handler in a new goroutine.
type Server struct {
	config  ServerConfig
	tlsConf *tls.Config
	logger  *slog.Logger
	plog    log.Logger

	listener net.Listener
	running  atomic.Bool
	active   atomic.Int32

	// handshakeCtx is cancelled by Stop to abort pending handshakes.
	handshakeCtx    context.Context
	cancelHandshake context.CancelFunc

	acceptWG  sync.WaitGroup // accept loop and handshakes
	handlerWG sync.WaitGroup // connection handlers
}

// NewServer creates a new relay listener.
func NewServer(config ServerConfig) (*Server, error) {
	if config.TLSConfig == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("Handler is required")
	}
	if config.Address == "" {
		config.Address = fmt.Sprintf(":%d", DefaultPort)
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = DefaultHandshakeTimeout
	}

	tlsConf, err := NewServerTLSConfig(config.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Server{
		config:  config,
		tlsConf: tlsConf,
		logger:  logger,
		plog:    log.OrNoop(config.ProtocolLogger),
	}, nil
}

// Start binds the listener and starts the accept loop. Handlers receive
// ctx for its values; cancelling it does not stop the server or abort
// handshakes. Stop ends the server.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return ErrServerRunning
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.handshakeCtx, s.cancelHandshake = context.WithCancel(context.WithoutCancel(ctx))
	s.running.Store(true)

	s.logger.Info("listening", "addr", listener.Addr().String())

	s.acceptWG.Add(1)
	go s.acceptLoop(ctx)

	return nil
}

// Stop stops accepting connections, aborts pending handshakes and waits
// for the accept loop. Running handlers are not touched; use Wait.
func (s *Server) Stop() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.cancelHandshake()
	err := s.listener.Close()
	s.acceptWG.Wait()

	s.logger.Info("listener closed")
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Wait blocks until every connection handler has returned or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.handlerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the server's listen address.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of running connection handlers.
func (s *Server) ConnectionCount() int {
	return int(s.active.Load())
}

// acceptLoop accepts incoming connections until Stop.
func (s *Server) acceptLoop(ctx context.Context) {
	defer s.acceptWG.Done()

	var backoff time.Duration
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.reportError(nil, fmt.Errorf("accept error: %w", err))

			if backoff == 0 {
				backoff = acceptBackoffMin
			} else {
				backoff = min(backoff*2, acceptBackoffMax)
			}
			select {
			case <-time.After(backoff):
			case <-s.handshakeCtx.Done():
				return
			}
			continue
		}
		backoff = 0

		s.acceptWG.Add(1)
		go s.upgrade(ctx, conn)
	}
}

// upgrade performs the TLS handshake and starts the handler.
func (s *Server) upgrade(ctx context.Context, conn net.Conn) {
	defer s.acceptWG.Done()

	hsCtx, cancel := context.WithTimeout(s.handshakeCtx, s.config.HandshakeTimeout)
	defer cancel()

	tlsConn := tls.Server(conn, s.tlsConf)
	if err := tlsConn.HandshakeContext(hsCtx); err != nil {
		_ = conn.Close()
		s.reportError(nil, fmt.Errorf("%w: %s: %w", ErrHandshake, conn.RemoteAddr(), err))
		return
	}

	connID := uuid.New().String()
	framer := NewFramer(tlsConn)
	framer.SetLogger(s.config.ProtocolLogger, connID)

	sconn := &ServerConn{
		conn:       tlsConn,
		framer:     framer,
		tlsState:   tlsConn.ConnectionState(),
		remoteAddr: conn.RemoteAddr(),
		connID:     connID,
	}

	s.logState(sconn, "", "CONNECTED")

	s.handlerWG.Add(1)
	s.active.Add(1)
	go func() {
		defer s.handlerWG.Done()
		defer s.active.Add(-1)

		s.config.Handler.HandleConn(ctx, sconn)
		s.logState(sconn, "CONNECTED", "DISCONNECTED")
	}()
}

func (s *Server) reportError(conn *ServerConn, err error) {
	s.logger.Warn("listener error", "error", err)
	s.plog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerTransport,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Message: err.Error(),
			Context: "accept",
		},
	})
	if s.config.OnError != nil {
		s.config.OnError(conn, err)
	}
}

func (s *Server) logState(conn *ServerConn, oldState, newState string) {
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: conn.connID,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   conn.remoteAddr.String(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
		},
	})
}

// ServerConn represents an upgraded client connection.
type ServerConn struct {
	conn       *tls.Conn
	framer     *Framer
	tlsState   tls.ConnectionState
	remoteAddr net.Addr
	connID     string

	closeOnce sync.Once
	closeErr  error
}

// ID returns the unique connection identifier.
func (c *ServerConn) ID() string {
	return c.connID
}

// RemoteAddr returns the remote address of the client.
func (c *ServerConn) RemoteAddr() net.Addr {
	return c.remoteAddr
}

// TLSState returns the TLS connection state.
func (c *ServerConn) TLSState() tls.ConnectionState {
	return c.tlsState
}

// ReadFrame blocks for the next frame from the client.
func (c *ServerConn) ReadFrame() ([]byte, error) {
	return c.framer.ReadFrame()
}

// Send writes one frame to the client.
func (c *ServerConn) Send(payload []byte) error {
	return c.framer.WriteFrame(payload)
}

// SetReadDeadline sets the deadline for the next ReadFrame.
func (c *ServerConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Interrupt makes a blocked ReadFrame return immediately with a timeout
// error. Writes are unaffected, so a response in flight still goes out.
func (c *ServerConn) Interrupt() error {
	return c.conn.SetReadDeadline(time.Now())
}

// Close closes the connection. Safe to call more than once.
func (c *ServerConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
