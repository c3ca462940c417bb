package config

import (
	"errors"
	"io/fs"
	"net"
	"os"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are kept. An empty path or missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv applies environment variables to cfg, skipping explicitly set
// flags. HOST, PORT, SSL_CERT_PATH, SSL_KEY_PATH, SERIAL_PORT and
// SERIAL_BAUD are honored for existing deployments; RELAY_* names cover
// the rest and take precedence over them.
func ApplyEnv(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	if !s.changed[FlagListen] {
		cfg.ListenAddress = listenFromEnv(cfg.ListenAddress, os.Getenv("HOST"), os.Getenv("PORT"))
	}
	s.setString(FlagListen, os.Getenv("RELAY_LISTEN"), &cfg.ListenAddress)

	s.setString(FlagCert, os.Getenv("SSL_CERT_PATH"), &cfg.CertFile)
	s.setString(FlagCert, os.Getenv("RELAY_CERT"), &cfg.CertFile)
	s.setString(FlagKey, os.Getenv("SSL_KEY_PATH"), &cfg.KeyFile)
	s.setString(FlagKey, os.Getenv("RELAY_KEY"), &cfg.KeyFile)
	s.setString(FlagClientCA, os.Getenv("RELAY_CLIENT_CA"), &cfg.ClientCAFile)
	s.setBoolFromString(FlagRequireClientCert, os.Getenv("RELAY_REQUIRE_CLIENT_CERT"), &cfg.RequireClientCert)
	s.setBoolFromString(FlagReloadCerts, os.Getenv("RELAY_RELOAD_CERTS"), &cfg.ReloadCerts)

	s.setString(FlagSerialPort, os.Getenv("SERIAL_PORT"), &cfg.SerialPort)
	s.setString(FlagSerialPort, os.Getenv("RELAY_SERIAL_PORT"), &cfg.SerialPort)
	if err := s.setIntFromString(FlagBaudRate, os.Getenv("SERIAL_BAUD"), &cfg.BaudRate); err != nil {
		return err
	}
	if err := s.setIntFromString(FlagBaudRate, os.Getenv("RELAY_BAUD"), &cfg.BaudRate); err != nil {
		return err
	}
	if err := s.setIntFromString(FlagDataBits, os.Getenv("RELAY_DATA_BITS"), &cfg.DataBits); err != nil {
		return err
	}
	s.setString(FlagParity, os.Getenv("RELAY_PARITY"), &cfg.Parity)
	s.setString(FlagStopBits, os.Getenv("RELAY_STOP_BITS"), &cfg.StopBits)
	s.setBoolFromString(FlagDryRun, os.Getenv("RELAY_DRY_RUN"), &cfg.DryRun)

	if err := s.setIntFromString(FlagQueueSize, os.Getenv("RELAY_QUEUE_SIZE"), &cfg.QueueSize); err != nil {
		return err
	}
	if err := s.setDuration(FlagHandshakeTimeout, os.Getenv("RELAY_HANDSHAKE_TIMEOUT"), &cfg.HandshakeTimeout); err != nil {
		return err
	}
	if err := s.setDuration(FlagIdleTimeout, os.Getenv("RELAY_IDLE_TIMEOUT"), &cfg.IdleTimeout); err != nil {
		return err
	}
	if err := s.setDuration(FlagShutdownTimeout, os.Getenv("RELAY_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setString(FlagLogLevel, os.Getenv("RELAY_LOG_LEVEL"), &cfg.LogLevel)
	s.setString(FlagLogFormat, os.Getenv("RELAY_LOG_FORMAT"), &cfg.LogFormat)
	s.setString(FlagProtocolLog, os.Getenv("RELAY_PROTOCOL_LOG"), &cfg.ProtocolLog)

	s.setBoolFromString(FlagAdvertise, os.Getenv("RELAY_ADVERTISE"), &cfg.Advertise)
	s.setString(FlagInstanceName, os.Getenv("RELAY_INSTANCE_NAME"), &cfg.InstanceName)

	return nil
}

// listenFromEnv replaces the host and/or port of addr.
func listenFromEnv(addr, host, port string) string {
	if host == "" && port == "" {
		return addr
	}
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		h, p = "", addr
	}
	if host != "" {
		h = host
	}
	if port != "" {
		p = port
	}
	return net.JoinHostPort(h, p)
}
