package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	c := DefaultConfig()
	c.CertFile = "server.crt"
	c.KeyFile = "server.key"
	c.SerialPort = "/dev/ttyACM0"
	return c
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.Equal(t, ":8443", c.ListenAddress)
	assert.Equal(t, 9600, c.BaudRate)
	assert.Equal(t, 8, c.DataBits)
	assert.Equal(t, "none", c.Parity)
	assert.Equal(t, "1", c.StopBits)
	assert.Equal(t, 64, c.QueueSize)
	assert.Equal(t, 10*time.Second, c.HandshakeTimeout)
	assert.Equal(t, "console", c.LogFormat)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing cert", func(c *Config) { c.CertFile = "" }, true},
		{"missing key", func(c *Config) { c.KeyFile = "" }, true},
		{"mtls without CA", func(c *Config) { c.RequireClientCert = true }, true},
		{"mtls with CA", func(c *Config) { c.RequireClientCert = true; c.ClientCAFile = "ca.pem" }, false},
		{"bad listen", func(c *Config) { c.ListenAddress = "8443" }, true},
		{"no serial port", func(c *Config) { c.SerialPort = "" }, true},
		{"dry run without port", func(c *Config) { c.SerialPort = ""; c.DryRun = true }, false},
		{"zero baud", func(c *Config) { c.BaudRate = 0 }, true},
		{"bad parity", func(c *Config) { c.Parity = "sometimes" }, true},
		{"bad stop bits", func(c *Config) { c.StopBits = "3" }, true},
		{"zero queue", func(c *Config) { c.QueueSize = 0 }, true},
		{"negative idle", func(c *Config) { c.IdleTimeout = -time.Second }, true},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, true},
		{"long instance name", func(c *Config) { c.InstanceName = string(make([]byte, 64)) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: "127.0.0.1:9443"
cert: /etc/relay/server.crt
key: /etc/relay/server.key
serial_port: /dev/ttyUSB0
baud: 115200
idle_timeout: 30s
advertise: true
`), 0o600))

	fc, err := LoadFile(path)
	require.NoError(t, err)

	cfg := DefaultConfig()
	require.NoError(t, ApplyFile(&cfg, fc, nil))

	assert.Equal(t, "127.0.0.1:9443", cfg.ListenAddress)
	assert.Equal(t, "/etc/relay/server.crt", cfg.CertFile)
	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialPort)
	assert.Equal(t, 115200, cfg.BaudRate)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout)
	assert.True(t, cfg.Advertise)
	assert.Equal(t, 64, cfg.QueueSize, "absent keys keep defaults")
}

func TestLoadFileTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
serial_port = "COM3"
queue_size = 8
require_client_cert = true
client_ca = "ca.pem"
`), 0o600))

	fc, err := LoadFile(path)
	require.NoError(t, err)

	cfg := DefaultConfig()
	require.NoError(t, ApplyFile(&cfg, fc, nil))

	assert.Equal(t, "COM3", cfg.SerialPort)
	assert.Equal(t, 8, cfg.QueueSize)
	assert.True(t, cfg.RequireClientCert)
	assert.Equal(t, "ca.pem", cfg.ClientCAFile)
}

func TestLoadFileErrors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("queue_size = ["), 0o600))
	_, err = LoadFile(path)
	assert.Error(t, err)
}

func TestApplyFileRespectsChangedFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SerialPort = "/dev/from-flag"

	fc := FileConfig{SerialPort: "/dev/from-file", BaudRate: 19200}
	require.NoError(t, ApplyFile(&cfg, fc, map[string]bool{FlagSerialPort: true}))

	assert.Equal(t, "/dev/from-flag", cfg.SerialPort)
	assert.Equal(t, 19200, cfg.BaudRate)
}

func TestApplyFileInvalidDuration(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyFile(&cfg, FileConfig{IdleTimeout: "soon"}, nil)
	assert.Error(t, err)
}
