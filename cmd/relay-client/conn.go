package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/actuator-relay/relay-go/internal/config"
	"github.com/actuator-relay/relay-go/pkg/command"
	"github.com/actuator-relay/relay-go/pkg/discovery"
	"github.com/actuator-relay/relay-go/pkg/transport"
	"github.com/actuator-relay/relay-go/pkg/version"
)

// errRejected is returned when the relay answers with an error response.
var errRejected = errors.New("command rejected by relay")

// errFingerprint is returned when the served certificate is not the one
// the relay advertised.
var errFingerprint = errors.New("certificate fingerprint mismatch")

// relayConn is a connection to one relay.
type relayConn struct {
	conn transport.ClientConnection
	cfg  config.ClientConfig
}

// connect dials cfg.Server, or the first relay found via mDNS.
func connect(ctx context.Context, cfg config.ClientConfig, out io.Writer) (*relayConn, error) {
	tc, err := cfg.TLS()
	if err != nil {
		return nil, err
	}

	addr := cfg.Server
	var advertised *discovery.RelayService
	if addr == "" {
		browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{BrowseTimeout: cfg.Timeout})
		defer browser.Stop()

		findCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
		advertised, err = browser.Find(findCtx, "")
		if err != nil {
			return nil, fmt.Errorf("no relay given and none discovered: %w", err)
		}
		if err := version.Check(advertised.Version); err != nil {
			return nil, fmt.Errorf("relay %s: %w", advertised.InstanceName, err)
		}
		addr = advertised.Dial()
		if tc.ServerName == "" && advertised.Host != "" {
			// Certificates name the host, not the address it resolved to.
			tc.ServerName = trimDot(advertised.Host)
		}
		fmt.Fprintf(out, "Using relay %s at %s\n", advertised.InstanceName, addr)
	}

	client, err := transport.NewClient(transport.ClientConfig{
		TLSConfig:      tc,
		ConnectTimeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}
	conn, err := client.Connect(ctx, addr)
	if err != nil {
		return nil, err
	}

	if advertised != nil && advertised.Fingerprint != "" {
		if err := checkFingerprint(conn, advertised.Fingerprint); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return &relayConn{conn: conn, cfg: cfg}, nil
}

func checkFingerprint(conn transport.ClientConnection, want string) error {
	peers := conn.TLSState().PeerCertificates
	if len(peers) == 0 {
		return fmt.Errorf("%w: no certificate presented", errFingerprint)
	}
	if got := discovery.CertificateFingerprint(peers[0]); got != want {
		return fmt.Errorf("%w: advertised %s, got %s", errFingerprint, want, got)
	}
	return nil
}

// send delivers one command and returns the relay's response.
func (r *relayConn) send(cmd command.Command) (command.Command, error) {
	payload, err := r.conn.Request([]byte(cmd.String()), r.cfg.Timeout)
	if err != nil {
		return command.Command{}, err
	}
	resp, err := command.Split(payload)
	if err != nil {
		return command.Command{}, fmt.Errorf("unexpected response: %w", err)
	}
	if !command.IsAcknowledge(payload) {
		return resp, fmt.Errorf("%w: %s", errRejected, cmd)
	}
	return resp, nil
}

func (r *relayConn) Close() error {
	return r.conn.Close()
}

func trimDot(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if n := len(host); n > 0 && host[n-1] == '.' {
		return host[:n-1]
	}
	return host
}
