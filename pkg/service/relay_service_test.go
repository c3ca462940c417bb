package service

import (
	"context"
	"crypto/x509"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/actuator-relay/relay-go/pkg/command"
	"github.com/actuator-relay/relay-go/pkg/discovery"
	"github.com/actuator-relay/relay-go/pkg/dispatch"
	"github.com/actuator-relay/relay-go/pkg/transport"
)

const responseTimeout = 2 * time.Second

func TestNewRelayServiceValidation(t *testing.T) {
	cert, _ := testCertificate(t)

	_, err := NewRelayService(nil, ServiceConfig{TLS: &transport.TLSConfig{Certificate: cert}})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRelayService(newRecordingDevice(), ServiceConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRelayService(newRecordingDevice(), ServiceConfig{
		TLS:       &transport.TLSConfig{Certificate: cert},
		QueueSize: -1,
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewRelayService(newRecordingDevice(), ServiceConfig{
		TLS:          &transport.TLSConfig{Certificate: cert},
		InstanceName: strings.Repeat("r", discovery.MaxInstanceNameLen+1),
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRelayServiceLifecycle(t *testing.T) {
	dev := newRecordingDevice()
	svc, _ := startRelay(t, dev, nil)

	assert.Equal(t, StateRunning, svc.State())
	assert.ErrorIs(t, svc.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, svc.Stop())
	assert.Equal(t, StateStopped, svc.State())
	assert.True(t, dev.isClosed())
	assert.ErrorIs(t, svc.Stop(), ErrNotStarted)
	assert.NoError(t, svc.Err())
}

func TestRelayServiceStopBeforeStart(t *testing.T) {
	cert, _ := testCertificate(t)
	svc, err := NewRelayService(newRecordingDevice(), ServiceConfig{TLS: &transport.TLSConfig{Certificate: cert}})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Stop(), ErrNotStarted)
	assert.Nil(t, svc.Addr())
	assert.Equal(t, StateIdle, svc.State())
}

func TestRelayServiceForwardsCommands(t *testing.T) {
	dev := newRecordingDevice()
	svc, client := startRelay(t, dev, nil)
	conn := dial(t, svc, client)

	for _, cmd := range []string{"green-on", "blue-off", "a-b-c"} {
		resp, err := conn.Request([]byte(cmd), responseTimeout)
		require.NoError(t, err)
		assert.Equal(t, "acknowledge-", string(resp), cmd)
	}

	require.NoError(t, svc.Stop())
	assert.Equal(t, "green-on-c970\nblue-off-61fe\na-b-c-0348\n", dev.String())
	assert.Equal(t, dispatch.Stats{Written: 3}, svc.Stats())
}

func TestRelayServiceMalformedFrame(t *testing.T) {
	dev := newRecordingDevice()
	svc, client := startRelay(t, dev, nil)
	conn := dial(t, svc, client)

	resp, err := conn.Request([]byte("garbage"), responseTimeout)
	require.NoError(t, err)
	assert.Equal(t, "error-", string(resp))

	resp, err = conn.Request([]byte("servo-90"), responseTimeout)
	require.NoError(t, err)
	assert.Equal(t, "acknowledge-", string(resp))

	require.NoError(t, svc.Stop())
	assert.Equal(t, "servo-90-772e\n", dev.String())
}

func TestRelayServiceDisconnectLeavesNoEntry(t *testing.T) {
	dev := newRecordingDevice()
	svc, client := startRelay(t, dev, nil)
	conn := dial(t, svc, client)

	assert.Eventually(t, func() bool { return len(svc.Sessions()) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return len(svc.Sessions()) == 0 }, time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Stop())
	assert.Empty(t, dev.String())
}

func TestRelayServiceSessionsInAcceptOrder(t *testing.T) {
	svc, client := startRelay(t, newRecordingDevice(), nil)

	var local []string
	for range 3 {
		conn := dial(t, svc, client)
		local = append(local, conn.LocalAddr().String())
		// Wait for registration so accept order is deterministic.
		n := len(local)
		require.Eventually(t, func() bool { return len(svc.Sessions()) == n }, time.Second, 10*time.Millisecond)
	}

	sessions := svc.Sessions()
	require.Len(t, sessions, 3)
	for i, s := range sessions {
		assert.Equal(t, local[i], s.RemoteAddr)
		assert.NotEmpty(t, s.ID)
	}
}

func TestRelayServiceQueueFull(t *testing.T) {
	dev := newRecordingDevice()
	dev.gate = make(chan struct{})
	svc, client := startRelay(t, dev, func(c *ServiceConfig) { c.QueueSize = 1 })
	conn := dial(t, svc, client)

	resp, err := conn.Request([]byte("green-on"), responseTimeout)
	require.NoError(t, err)
	assert.Equal(t, "acknowledge-", string(resp))

	// The writer now holds green-on and is blocked on the device.
	select {
	case <-dev.entered:
	case <-time.After(responseTimeout):
		t.Fatal("writer never reached the device")
	}

	resp, err = conn.Request([]byte("green-off"), responseTimeout)
	require.NoError(t, err)
	assert.Equal(t, "acknowledge-", string(resp))

	resp, err = conn.Request([]byte("blue-on"), responseTimeout)
	require.NoError(t, err)
	assert.Equal(t, "error-", string(resp), "third command must be rejected")

	// The connection survives the rejection.
	assert.Len(t, svc.Sessions(), 1)

	close(dev.gate)
	require.NoError(t, svc.Stop())
	assert.Equal(t, "green-on-c970\ngreen-off-"+command.ChecksumHex("green-off")+"\n", dev.String())
}

func TestRelayServiceDeviceFailure(t *testing.T) {
	dev := newRecordingDevice()
	dev.fail = errDeviceGone
	svc, client := startRelay(t, dev, nil)
	conn := dial(t, svc, client)

	resp, err := conn.Request([]byte("green-on"), responseTimeout)
	require.NoError(t, err)
	assert.Equal(t, "acknowledge-", string(resp))

	select {
	case <-svc.Done():
	case <-time.After(responseTimeout):
		t.Fatal("writer did not stop after device failure")
	}
	assert.ErrorIs(t, svc.Err(), dispatch.ErrDeviceWrite)
	assert.ErrorIs(t, svc.Err(), errDeviceGone)

	resp, err = conn.Request([]byte("green-off"), responseTimeout)
	require.NoError(t, err)
	assert.Equal(t, "error-", string(resp))

	_, err = conn.Receive(responseTimeout)
	assert.Error(t, err, "session must close once the device is gone")

	assert.NoError(t, svc.Stop())
}

func TestRelayServiceStopInterruptsIdleSessions(t *testing.T) {
	svc, client := startRelay(t, newRecordingDevice(), func(c *ServiceConfig) {
		c.ShutdownTimeout = 5 * time.Second
	})
	conn := dial(t, svc, client)
	require.Eventually(t, func() bool { return len(svc.Sessions()) == 1 }, time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, svc.Stop())
	assert.Less(t, time.Since(start), 2*time.Second, "idle sessions must not hold up Stop")
	assert.Empty(t, svc.Sessions())

	_, err := conn.Receive(responseTimeout)
	assert.Error(t, err)

	_, err = client.Connect(context.Background(), conn.RemoteAddr().String())
	assert.Error(t, err, "listener must be closed")
}

func TestRelayServiceStopDrainsQueue(t *testing.T) {
	dev := newRecordingDevice()
	dev.gate = make(chan struct{})
	svc, client := startRelay(t, dev, nil)
	conn := dial(t, svc, client)

	cmds := []string{"green-on", "green-off", "blue-on", "blue-off"}
	for _, cmd := range cmds {
		resp, err := conn.Request([]byte(cmd), responseTimeout)
		require.NoError(t, err)
		require.Equal(t, "acknowledge-", string(resp))
	}

	go func() {
		for range cmds {
			dev.gate <- struct{}{}
		}
	}()
	require.NoError(t, svc.Stop())

	var want string
	for _, cmd := range cmds {
		want += cmd + "-" + command.ChecksumHex(cmd) + "\n"
	}
	assert.Equal(t, want, dev.String())
}

func TestRelayServiceIdleTimeout(t *testing.T) {
	svc, client := startRelay(t, newRecordingDevice(), func(c *ServiceConfig) {
		c.IdleTimeout = 100 * time.Millisecond
	})
	conn := dial(t, svc, client)

	_, err := conn.Receive(responseTimeout)
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return len(svc.Sessions()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestRelayServiceAdvertises(t *testing.T) {
	adv := &MockAdvertiser{}
	var info *discovery.RelayInfo
	adv.On("Advertise", mock.Anything, mock.AnythingOfType("*discovery.RelayInfo")).
		Run(func(args mock.Arguments) { info = args.Get(1).(*discovery.RelayInfo) }).
		Return(nil)
	adv.On("Stop").Return(nil)

	svc, _ := startRelay(t, newRecordingDevice(), func(c *ServiceConfig) {
		c.Advertise = true
		c.Advertiser = adv
		c.InstanceName = "bench-relay"
	})

	require.NotNil(t, info)
	assert.Equal(t, "bench-relay", info.InstanceName)
	assert.Equal(t, uint16(svc.Addr().(*net.TCPAddr).Port), info.Port)
	assert.Equal(t, discovery.ProtocolVersion, info.Version)
	assert.True(t, discovery.ValidateFingerprint(info.Fingerprint))
	assert.False(t, info.MutualTLS)
	assert.Equal(t, "test", info.Device)

	require.NoError(t, svc.Stop())
	adv.AssertExpectations(t)
}

func TestRelayServiceAdvertiseFailureIsNotFatal(t *testing.T) {
	adv := &MockAdvertiser{}
	adv.On("Advertise", mock.Anything, mock.Anything).Return(errors.New("no multicast"))

	svc, client := startRelay(t, newRecordingDevice(), func(c *ServiceConfig) {
		c.Advertise = true
		c.Advertiser = adv
	})
	conn := dial(t, svc, client)

	resp, err := conn.Request([]byte("green-on"), responseTimeout)
	require.NoError(t, err)
	assert.Equal(t, "acknowledge-", string(resp))

	require.NoError(t, svc.Stop())
	adv.AssertNotCalled(t, "Stop")
}

func TestRelayServiceReleasedGateLetsStopFinish(t *testing.T) {
	dev := newRecordingDevice()
	dev.gate = make(chan struct{})
	svc, client := startRelay(t, dev, nil)
	conn := dial(t, svc, client)

	resp, err := conn.Request([]byte("blue-on"), responseTimeout)
	require.NoError(t, err)
	require.Equal(t, "acknowledge-", string(resp))

	select {
	case <-dev.entered:
	case <-time.After(responseTimeout):
		t.Fatal("writer never reached the device")
	}

	dev.release()
	stopped := make(chan error, 1)
	go func() { stopped <- svc.Stop() }()
	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(responseTimeout):
		t.Fatal("Stop blocked on a released device")
	}
	assert.Equal(t, "blue-on-"+command.ChecksumHex("blue-on")+"\n", dev.String())
}

func TestRelayServiceServesAfterStartContextCancelled(t *testing.T) {
	cert, leaf := testCertificate(t)
	config := DefaultServiceConfig()
	config.ListenAddress = "127.0.0.1:0"
	config.TLS = &transport.TLSConfig{Certificate: cert}
	config.ShutdownTimeout = time.Second

	dev := newRecordingDevice()
	svc, err := NewRelayService(dev, config)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, svc.Start(ctx))
	t.Cleanup(func() {
		if svc.State() == StateRunning {
			_ = svc.Stop()
		}
	})
	cancel()

	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	client, err := transport.NewClient(transport.ClientConfig{
		TLSConfig:      &transport.TLSConfig{RootCAs: pool},
		ConnectTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	conn := dial(t, svc, client)

	resp, err := conn.Request([]byte("green-on"), responseTimeout)
	require.NoError(t, err)
	assert.Equal(t, "acknowledge-", string(resp))

	require.NoError(t, svc.Stop())
	assert.Equal(t, "green-on-c970\n", dev.String())
}

// lockedBuffer is an io.Writer safe for the service's goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRelayServiceStartLeavesStartupLineToCaller(t *testing.T) {
	var out lockedBuffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo}))

	svc, _ := startRelay(t, newRecordingDevice(), func(c *ServiceConfig) { c.Logger = logger })
	require.NoError(t, svc.Stop())

	assert.NotContains(t, out.String(), "relay started")
	assert.NotContains(t, out.String(), "relay service running", "startup detail is debug only")
}
