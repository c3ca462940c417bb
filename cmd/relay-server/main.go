// Command relay-server accepts actuator commands over TLS and forwards
// them, checksummed, to a serial-attached controller.
//
// Usage:
//
//	relay-server [flags]
//	relay-server gencert [flags]
//	relay-server ports
//
// Settings come from flags, environment variables (HOST, PORT,
// SSL_CERT_PATH, SSL_KEY_PATH, SERIAL_PORT, SERIAL_BAUD and RELAY_*),
// a .env file and an optional YAML or TOML config file, in that order
// of precedence.
//
// Examples:
//
//	# Create a CA and server certificate for a bench setup
//	relay-server gencert --dir ./certs --host relay.local --host 192.168.1.20
//
//	# Serve on the default port, writing to the Arduino
//	relay-server --cert certs/server.crt --key certs/server.key --serial-port /dev/ttyACM0
//
//	# Print device lines instead of opening a port
//	relay-server --cert certs/server.crt --key certs/server.key --dry-run --log-level debug
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/actuator-relay/relay-go/internal/config"
	"github.com/actuator-relay/relay-go/internal/logging"
	"github.com/actuator-relay/relay-go/pkg/device"
	"github.com/actuator-relay/relay-go/pkg/log"
	"github.com/actuator-relay/relay-go/pkg/service"
	"github.com/actuator-relay/relay-go/pkg/transport"
)

// errWriterFailed makes the process exit non-zero after the device failed.
var errWriterFailed = errors.New("device writer stopped")

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serverOptions collects everything the root command's flags bind to.
type serverOptions struct {
	cfg        config.Config
	configFile string
	envFile    string
}

func rootCmd() *cobra.Command {
	opts := &serverOptions{cfg: config.DefaultConfig()}

	cmd := &cobra.Command{
		Use:           "relay-server",
		Short:         "TLS actuator command relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(cmd.Flags(), &opts.cfg, opts.configFile, opts.envFile); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts.cfg, cmd.ErrOrStderr(), cmd.OutOrStdout())
		},
	}
	bindFlags(cmd.Flags(), opts)

	cmd.AddCommand(gencertCmd(), portsCmd())
	return cmd
}

func bindFlags(f *pflag.FlagSet, opts *serverOptions) {
	cfg := &opts.cfg

	f.StringVar(&opts.configFile, "config", "", "config file (YAML or TOML, default ~/.relay/config.yaml if present)")
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	f.StringVar(&cfg.ListenAddress, config.FlagListen, cfg.ListenAddress, "listen address")
	f.StringVar(&cfg.CertFile, config.FlagCert, cfg.CertFile, "server certificate (PEM)")
	f.StringVar(&cfg.KeyFile, config.FlagKey, cfg.KeyFile, "server private key (PEM)")
	f.StringVar(&cfg.ClientCAFile, config.FlagClientCA, cfg.ClientCAFile, "CA bundle for client certificates")
	f.BoolVar(&cfg.RequireClientCert, config.FlagRequireClientCert, cfg.RequireClientCert, "require client certificates (mutual TLS)")
	f.BoolVar(&cfg.ReloadCerts, config.FlagReloadCerts, cfg.ReloadCerts, "reload the certificate when its files change")

	f.StringVar(&cfg.SerialPort, config.FlagSerialPort, cfg.SerialPort, "serial device (e.g. /dev/ttyACM0)")
	f.IntVar(&cfg.BaudRate, config.FlagBaudRate, cfg.BaudRate, "baud rate")
	f.IntVar(&cfg.DataBits, config.FlagDataBits, cfg.DataBits, "data bits")
	f.StringVar(&cfg.Parity, config.FlagParity, cfg.Parity, "parity: none, odd, even, mark, space")
	f.StringVar(&cfg.StopBits, config.FlagStopBits, cfg.StopBits, "stop bits: 1, 1.5, 2")
	f.BoolVar(&cfg.DryRun, config.FlagDryRun, cfg.DryRun, "write device lines to stdout instead of a serial port")

	f.IntVar(&cfg.QueueSize, config.FlagQueueSize, cfg.QueueSize, "dispatch queue capacity")
	f.DurationVar(&cfg.HandshakeTimeout, config.FlagHandshakeTimeout, cfg.HandshakeTimeout, "TLS handshake timeout")
	f.DurationVar(&cfg.IdleTimeout, config.FlagIdleTimeout, cfg.IdleTimeout, "close sessions idle this long (0 disables)")
	f.DurationVar(&cfg.ShutdownTimeout, config.FlagShutdownTimeout, cfg.ShutdownTimeout, "grace period for sessions on shutdown")

	f.StringVar(&cfg.LogLevel, config.FlagLogLevel, cfg.LogLevel, "log level: debug, info, warn, error")
	f.StringVar(&cfg.LogFormat, config.FlagLogFormat, cfg.LogFormat, "log format: console, json")
	f.StringVar(&cfg.ProtocolLog, config.FlagProtocolLog, cfg.ProtocolLog, "write a protocol log (.rlog) to this file")

	f.BoolVar(&cfg.Advertise, config.FlagAdvertise, cfg.Advertise, "advertise the relay via mDNS")
	f.StringVar(&cfg.InstanceName, config.FlagInstanceName, cfg.InstanceName, "mDNS instance name")
}

// loadConfig layers .env, the config file and the environment under the
// flags the user set explicitly.
func loadConfig(flags *pflag.FlagSet, cfg *config.Config, configFile, envFile string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}

	changed := map[string]bool{}
	flags.Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	path := configFile
	if path == "" && config.FileExists(config.DefaultConfigPath()) {
		path = config.DefaultConfigPath()
	}
	if path != "" {
		fc, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		if err := config.ApplyFile(cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := config.ApplyEnv(cfg, changed); err != nil {
		return err
	}
	return cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, logOut, deviceOut io.Writer) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, logOut)
	if err != nil {
		return err
	}

	tlsConfig, err := serverTLS(ctx, cfg, logger)
	if err != nil {
		return err
	}

	plog, closeLog, err := protocolLogger(cfg, logger)
	if err != nil {
		return err
	}
	defer closeLog()

	dev, err := openDevice(cfg, deviceOut)
	if err != nil {
		return err
	}

	svcConfig := service.DefaultServiceConfig()
	svcConfig.ListenAddress = cfg.ListenAddress
	svcConfig.TLS = tlsConfig
	svcConfig.QueueSize = cfg.QueueSize
	svcConfig.HandshakeTimeout = cfg.HandshakeTimeout
	svcConfig.IdleTimeout = cfg.IdleTimeout
	svcConfig.ShutdownTimeout = cfg.ShutdownTimeout
	svcConfig.Advertise = cfg.Advertise
	svcConfig.InstanceName = cfg.InstanceName
	svcConfig.Logger = logger
	svcConfig.ProtocolLogger = plog

	svc, err := service.NewRelayService(dev, svcConfig)
	if err != nil {
		_ = dev.Close()
		return err
	}
	if err := svc.Start(ctx); err != nil {
		_ = dev.Close()
		return err
	}
	logger.Info("relay started",
		"addr", svc.Addr().String(),
		"device", dev.Name(),
		"mutual_tls", cfg.RequireClientCert)

	var failed bool
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case <-svc.Done():
		failed = true
		logger.Error("device writer stopped, shutting down", "error", svc.Err())
	}

	stopErr := svc.Stop()
	stats := svc.Stats()
	logger.Info("relay stopped",
		"written", stats.Written,
		"dropped", stats.Dropped,
		"failed", stats.Failed)

	if failed {
		return fmt.Errorf("%w: %w", errWriterFailed, svc.Err())
	}
	return stopErr
}

// serverTLS loads the server key pair and, with mutual TLS, the client CA
// bundle. With ReloadCerts the files are watched until ctx is done.
func serverTLS(ctx context.Context, cfg config.Config, logger *slog.Logger) (*transport.TLSConfig, error) {
	tc := &transport.TLSConfig{RequireClientCert: cfg.RequireClientCert}

	if cfg.ReloadCerts {
		reloader, err := transport.NewCertReloader(cfg.CertFile, cfg.KeyFile, logger)
		if err != nil {
			return nil, err
		}
		tc.GetCertificate = reloader.GetCertificate
		tc.Certificate = reloader.Certificate()
		go func() {
			if err := reloader.Watch(ctx); err != nil {
				logger.Warn("certificate watch stopped", "error", err)
			}
		}()
	} else {
		cert, err := transport.LoadKeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		tc.Certificate = cert
	}

	if cfg.ClientCAFile != "" {
		pool, err := transport.LoadCertPool(cfg.ClientCAFile)
		if err != nil {
			return nil, err
		}
		tc.ClientCAs = pool
	}
	return tc, nil
}

// protocolLogger combines the optional .rlog file with a debug-level
// mirror into the operational log.
func protocolLogger(cfg config.Config, logger *slog.Logger) (log.Logger, func(), error) {
	var loggers []log.Logger
	closeFn := func() {}

	if cfg.ProtocolLog != "" {
		fl, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return nil, nil, fmt.Errorf("open protocol log: %w", err)
		}
		loggers = append(loggers, fl)
		closeFn = func() {
			if n := fl.Dropped(); n > 0 {
				logger.Warn("protocol log dropped events", "count", n)
			}
			if err := fl.Close(); err != nil {
				logger.Warn("close protocol log", "error", err)
			}
		}
		logger.Info("protocol logging enabled", "path", cfg.ProtocolLog)
	}

	if logger.Enabled(context.Background(), slog.LevelDebug) {
		loggers = append(loggers, log.NewSlogAdapter(logger))
	}

	if len(loggers) == 0 {
		return nil, closeFn, nil
	}
	return log.NewMultiLogger(loggers...), closeFn, nil
}

// openDevice opens the serial port, or a stdout writer for dry runs.
func openDevice(cfg config.Config, out io.Writer) (device.Device, error) {
	if cfg.DryRun {
		// Hide any Close method so the service does not close stdout.
		return device.NewWriterDevice("stdout", struct{ io.Writer }{out}), nil
	}
	dev, err := device.OpenSerial(cfg.Serial())
	if err != nil {
		return nil, err
	}
	return dev, nil
}
