package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config with string durations and optional booleans so
// that absent keys leave lower-precedence values alone.
type FileConfig struct {
	ListenAddress     string `yaml:"listen" toml:"listen"`
	CertFile          string `yaml:"cert" toml:"cert"`
	KeyFile           string `yaml:"key" toml:"key"`
	ClientCAFile      string `yaml:"client_ca" toml:"client_ca"`
	RequireClientCert *bool  `yaml:"require_client_cert" toml:"require_client_cert"`
	ReloadCerts       *bool  `yaml:"reload_certs" toml:"reload_certs"`

	SerialPort string `yaml:"serial_port" toml:"serial_port"`
	BaudRate   int    `yaml:"baud" toml:"baud"`
	DataBits   int    `yaml:"data_bits" toml:"data_bits"`
	Parity     string `yaml:"parity" toml:"parity"`
	StopBits   string `yaml:"stop_bits" toml:"stop_bits"`

	QueueSize        int    `yaml:"queue_size" toml:"queue_size"`
	HandshakeTimeout string `yaml:"handshake_timeout" toml:"handshake_timeout"`
	IdleTimeout      string `yaml:"idle_timeout" toml:"idle_timeout"`
	ShutdownTimeout  string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	LogLevel    string `yaml:"log_level" toml:"log_level"`
	LogFormat   string `yaml:"log_format" toml:"log_format"`
	ProtocolLog string `yaml:"protocol_log" toml:"protocol_log"`

	Advertise    *bool  `yaml:"advertise" toml:"advertise"`
	InstanceName string `yaml:"instance_name" toml:"instance_name"`
}

// LoadFile reads a config file. Files ending in .toml are parsed as TOML,
// everything else as YAML.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(b, &fc)
	default:
		err = yaml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.relay/config.yaml, or "" without a home
// directory.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".relay", "config.yaml")
	}
	return ""
}

// FileExists reports whether p exists.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// ApplyFile copies file values into cfg, skipping explicitly set flags.
func ApplyFile(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString(FlagListen, fc.ListenAddress, &cfg.ListenAddress)
	s.setString(FlagCert, fc.CertFile, &cfg.CertFile)
	s.setString(FlagKey, fc.KeyFile, &cfg.KeyFile)
	s.setString(FlagClientCA, fc.ClientCAFile, &cfg.ClientCAFile)
	s.setBool(FlagRequireClientCert, fc.RequireClientCert, &cfg.RequireClientCert)
	s.setBool(FlagReloadCerts, fc.ReloadCerts, &cfg.ReloadCerts)

	s.setString(FlagSerialPort, fc.SerialPort, &cfg.SerialPort)
	s.setInt(FlagBaudRate, fc.BaudRate, &cfg.BaudRate)
	s.setInt(FlagDataBits, fc.DataBits, &cfg.DataBits)
	s.setString(FlagParity, fc.Parity, &cfg.Parity)
	s.setString(FlagStopBits, fc.StopBits, &cfg.StopBits)

	s.setInt(FlagQueueSize, fc.QueueSize, &cfg.QueueSize)
	if err := s.setDuration(FlagHandshakeTimeout, fc.HandshakeTimeout, &cfg.HandshakeTimeout); err != nil {
		return err
	}
	if err := s.setDuration(FlagIdleTimeout, fc.IdleTimeout, &cfg.IdleTimeout); err != nil {
		return err
	}
	if err := s.setDuration(FlagShutdownTimeout, fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setString(FlagLogLevel, fc.LogLevel, &cfg.LogLevel)
	s.setString(FlagLogFormat, fc.LogFormat, &cfg.LogFormat)
	s.setString(FlagProtocolLog, fc.ProtocolLog, &cfg.ProtocolLog)

	s.setBool(FlagAdvertise, fc.Advertise, &cfg.Advertise)
	s.setString(FlagInstanceName, fc.InstanceName, &cfg.InstanceName)

	return nil
}
