package service

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/actuator-relay/relay-go/pkg/device"
	"github.com/actuator-relay/relay-go/pkg/discovery"
	"github.com/actuator-relay/relay-go/pkg/dispatch"
	"github.com/actuator-relay/relay-go/pkg/log"
	"github.com/actuator-relay/relay-go/pkg/transport"
)

// RelayService accepts client commands over TLS and forwards them to a
// single device.
type RelayService struct {
	config ServiceConfig
	device device.Device
	logger *slog.Logger
	plog   log.Logger

	mu    sync.Mutex
	state ServiceState

	registry   *Registry
	queue      *dispatch.Queue
	writer     *dispatch.Writer
	server     *transport.Server
	advertiser discovery.Advertiser

	stopping     atomic.Bool
	cancelWriter context.CancelFunc
	writerDone   chan struct{}
	writerErr    error
}

// NewRelayService creates a relay service for dev.
func NewRelayService(dev device.Device, config ServiceConfig) (*RelayService, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: device is required", ErrInvalidConfig)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	defaults := DefaultServiceConfig()
	if config.ListenAddress == "" {
		config.ListenAddress = defaults.ListenAddress
	}
	if config.QueueSize == 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.HandshakeTimeout == 0 {
		config.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &RelayService{
		config:   config,
		device:   dev,
		logger:   logger,
		plog:     log.OrNoop(config.ProtocolLogger),
		registry: NewRegistry(),
	}, nil
}

// Start starts the device writer, the listener and, if enabled, mDNS
// advertisement. Cancelling ctx does not stop the relay; call Stop.
func (s *RelayService) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrAlreadyStarted
	}

	s.queue = dispatch.NewQueue(s.config.QueueSize)
	s.writer = dispatch.NewWriter(s.queue, s.device, dispatch.WriterConfig{
		Logger:         s.logger,
		ProtocolLogger: s.config.ProtocolLogger,
	})

	server, err := transport.NewServer(transport.ServerConfig{
		TLSConfig:        s.config.TLS,
		Address:          s.config.ListenAddress,
		HandshakeTimeout: s.config.HandshakeTimeout,
		Handler:          s,
		Logger:           s.logger,
		ProtocolLogger:   s.config.ProtocolLogger,
	})
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return err
	}
	s.server = server

	// The writer outlives ctx: Stop decides when it drains.
	writerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelWriter = cancel
	s.writerDone = make(chan struct{})
	go func() {
		defer close(s.writerDone)
		if err := s.writer.Run(writerCtx); err != nil {
			s.writerErr = err
			s.logger.Error("device writer stopped", "device", s.device.Name(), "error", err)
		}
	}()

	if s.config.Advertise {
		if err := s.startAdvertising(ctx); err != nil {
			// The relay is usable by address; discovery is a convenience.
			s.logger.Warn("mDNS advertisement failed", "error", err)
		}
	}

	s.state = StateRunning
	s.logger.Debug("relay service running", "queue_size", s.config.QueueSize)
	return nil
}

// HandleConn serves one client connection. It implements transport.ConnHandler.
// Sessions end on peer close, idle timeout or Stop; ctx is not consulted.
func (s *RelayService) HandleConn(_ context.Context, conn *transport.ServerConn) {
	s.serve(conn)
}

func (s *RelayService) serve(conn transport.ServerConnection) {
	session := NewSession(conn)
	s.registry.Add(session)

	h := &sessionHandler{
		session:     session,
		queue:       s.queue,
		registry:    s.registry,
		logger:      s.logger,
		plog:        s.plog,
		idleTimeout: s.config.IdleTimeout,
		stopping:    &s.stopping,
	}
	h.run()
}

// Stop shuts the relay down in order: stop accepting, let sessions finish
// their current command, close stragglers after ShutdownTimeout, drain
// the queue to the device and close the device.
func (s *RelayService) Stop() error {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.state = StateStopping
	s.mu.Unlock()

	var errs []error

	// 1. No new connections or advertisements.
	if s.advertiser != nil {
		_ = s.advertiser.Stop()
	}
	if err := s.server.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop listener: %w", err))
	}

	// 2. Sessions finish the command in hand and then terminate.
	s.stopping.Store(true)
	interrupted := s.registry.InterruptAll()

	// 3. Grace period, then force.
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	err := s.server.Wait(ctx)
	cancel()
	if err != nil {
		closed := s.registry.CloseAll()
		s.logger.Warn("sessions did not finish in time, closed", "count", closed)
		waitCtx, waitCancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		_ = s.server.Wait(waitCtx)
		waitCancel()
	}
	s.logger.Debug("sessions finished", "interrupted", interrupted)

	// 4. Drain the queue to the device, then release it.
	s.queue.Close()
	<-s.writerDone
	s.cancelWriter()
	if err := s.device.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close device: %w", err))
	}

	stats := s.writer.Stats()
	s.logger.Info("relay stopped", "written", stats.Written, "dropped", stats.Dropped)

	s.mu.Lock()
	s.state = StateStopped
	s.mu.Unlock()

	return errors.Join(errs...)
}

// Done is closed when the device writer has stopped, either because of
// Stop or because the device failed.
func (s *RelayService) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writerDone == nil {
		return nil
	}
	return s.writerDone
}

// Err returns the device failure that stopped the writer, if any. It is
// only meaningful after Done is closed.
func (s *RelayService) Err() error {
	select {
	case <-s.Done():
		return s.writerErr
	default:
		return nil
	}
}

// Sessions returns a snapshot of the live sessions in accept order.
func (s *RelayService) Sessions() []SessionInfo {
	return s.registry.Snapshot()
}

// Stats returns device writer counters.
func (s *RelayService) Stats() dispatch.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return dispatch.Stats{}
	}
	return s.writer.Stats()
}

// Addr returns the bound listen address, or nil before Start.
func (s *RelayService) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	return s.server.Addr()
}

// State returns the current service state.
func (s *RelayService) State() ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *RelayService) startAdvertising(ctx context.Context) error {
	advertiser := s.config.Advertiser
	if advertiser == nil {
		advertiser = discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	}

	name := s.config.InstanceName
	if name == "" {
		hostname, _ := os.Hostname()
		name = discovery.DefaultInstanceName(hostname)
	}

	info := &discovery.RelayInfo{
		InstanceName: name,
		Version:      discovery.ProtocolVersion,
		Fingerprint:  s.certFingerprint(),
		MutualTLS:    s.config.TLS.RequireClientCert,
		Device:       s.device.Name(),
	}
	if tcp, ok := s.server.Addr().(*net.TCPAddr); ok {
		info.Port = uint16(tcp.Port)
	}

	if err := advertiser.Advertise(ctx, info); err != nil {
		return err
	}
	s.advertiser = advertiser
	s.logger.Info("advertising relay", "instance", name, "service", discovery.ServiceType, "port", info.Port)
	return nil
}

// certFingerprint returns the fingerprint of the served certificate, or
// "" if it cannot be determined.
func (s *RelayService) certFingerprint() string {
	cert := &s.config.TLS.Certificate
	if len(cert.Certificate) == 0 && s.config.TLS.GetCertificate != nil {
		c, err := s.config.TLS.GetCertificate(nil)
		if err != nil || c == nil {
			return ""
		}
		cert = c
	}
	if len(cert.Certificate) == 0 {
		return ""
	}
	if cert.Leaf != nil {
		return discovery.CertificateFingerprint(cert.Leaf)
	}
	if leaf, err := x509.ParseCertificate(cert.Certificate[0]); err == nil {
		return discovery.CertificateFingerprint(leaf)
	}
	return discovery.FingerprintFromDER(cert.Certificate[0])
}

// Compile-time interface satisfaction check.
var _ transport.ConnHandler = (*RelayService)(nil)
