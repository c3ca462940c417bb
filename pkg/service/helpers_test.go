package service

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/actuator-relay/relay-go/pkg/discovery"
	"github.com/actuator-relay/relay-go/pkg/log"
	"github.com/actuator-relay/relay-go/pkg/transport"
)

// testCertificate creates a self-signed certificate for 127.0.0.1.
func testCertificate(t *testing.T) (tls.Certificate, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "relay.test"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, leaf
}

// recordingDevice collects every line written to it.
type recordingDevice struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool

	// gate, when set, blocks each Write until a value is received or
	// release is called.
	gate        chan struct{}
	released    chan struct{}
	releaseOnce sync.Once
	entered     chan struct{}

	// fail, when set, is returned by every Write.
	fail error
}

func newRecordingDevice() *recordingDevice {
	return &recordingDevice{
		entered:  make(chan struct{}, 64),
		released: make(chan struct{}),
	}
}

// release lets every pending and future gated Write through.
func (d *recordingDevice) release() {
	d.releaseOnce.Do(func() { close(d.released) })
}

func (d *recordingDevice) Write(p []byte) (int, error) {
	select {
	case d.entered <- struct{}{}:
	default:
	}
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-d.released:
		}
	}
	if d.fail != nil {
		return 0, d.fail
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Write(p)
}

func (d *recordingDevice) Name() string { return "test" }

func (d *recordingDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *recordingDevice) String() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.String()
}

func (d *recordingDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// recordingLogger keeps protocol events in memory.
type recordingLogger struct {
	mu  sync.Mutex
	evs []log.Event
}

func (r *recordingLogger) Log(e log.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evs = append(r.evs, e)
}

func (r *recordingLogger) events() []log.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]log.Event(nil), r.evs...)
}

var errDeviceGone = errors.New("device unplugged")

// startRelay starts a service on a loopback port and stops it on cleanup.
func startRelay(t *testing.T, dev *recordingDevice, mutate func(*ServiceConfig)) (*RelayService, *transport.Client) {
	t.Helper()

	cert, leaf := testCertificate(t)

	config := DefaultServiceConfig()
	config.ListenAddress = "127.0.0.1:0"
	config.TLS = &transport.TLSConfig{Certificate: cert}
	config.ShutdownTimeout = time.Second
	if mutate != nil {
		mutate(&config)
	}

	svc, err := NewRelayService(dev, config)
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() {
		// A test that stopped early must not leave the writer parked in
		// a gated Write, or Stop never returns.
		dev.release()
		if svc.State() == StateRunning {
			_ = svc.Stop()
		}
	})

	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	client, err := transport.NewClient(transport.ClientConfig{
		TLSConfig:      &transport.TLSConfig{RootCAs: pool},
		ConnectTimeout: 2 * time.Second,
	})
	require.NoError(t, err)

	return svc, client
}

func dial(t *testing.T, svc *RelayService, client *transport.Client) *transport.ClientConn {
	t.Helper()

	conn, err := client.Connect(context.Background(), svc.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// pipeConn is a ServerConnection over net.Pipe, for driving a session
// without TLS.
type pipeConn struct {
	id     string
	conn   net.Conn
	framer *transport.Framer
}

func newPipeConn(id string) (*pipeConn, *transport.Framer, net.Conn) {
	server, client := net.Pipe()
	return &pipeConn{id: id, conn: server, framer: transport.NewFramer(server)},
		transport.NewFramer(client), client
}

func (c *pipeConn) ID() string                        { return c.id }
func (c *pipeConn) RemoteAddr() net.Addr              { return c.conn.RemoteAddr() }
func (c *pipeConn) ReadFrame() ([]byte, error)        { return c.framer.ReadFrame() }
func (c *pipeConn) Send(data []byte) error            { return c.framer.WriteFrame(data) }
func (c *pipeConn) SetReadDeadline(t time.Time) error { return c.conn.SetReadDeadline(t) }
func (c *pipeConn) Interrupt() error                  { return c.conn.SetReadDeadline(time.Now()) }
func (c *pipeConn) Close() error                      { return c.conn.Close() }

var _ transport.ServerConnection = (*pipeConn)(nil)

// MockAdvertiser records advertisements.
type MockAdvertiser struct {
	mock.Mock
}

func (m *MockAdvertiser) Advertise(ctx context.Context, info *discovery.RelayInfo) error {
	return m.Called(ctx, info).Error(0)
}

func (m *MockAdvertiser) Update(info *discovery.RelayInfo) error {
	return m.Called(info).Error(0)
}

func (m *MockAdvertiser) Stop() error {
	return m.Called().Error(0)
}
