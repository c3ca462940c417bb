// Command relay-client sends actuator commands to a relay-server.
//
// Usage:
//
//	relay-client send [flags] <command>...
//	relay-client shell [flags]
//	relay-client discover [flags]
//	relay-client verify <line>
//	relay-client cert-info <file.crt>
//
// Commands follow the grammar green-on|off, blue-on|off, servo-<arg>,
// querystatus-<arg>. Without --server the first relay advertised via
// mDNS is used.
//
// Examples:
//
//	# Turn the green LED on
//	relay-client send --server 192.168.1.20:8443 --ca certs/ca.crt green-on
//
//	# Interactive session with mutual TLS
//	relay-client shell --ca certs/ca.crt --client-cert certs/bench.crt --client-key certs/bench.key
//
//	# Check a line captured from the serial port
//	relay-client verify green-on-c970
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/actuator-relay/relay-go/internal/config"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type clientOptions struct {
	cfg     config.ClientConfig
	envFile string
}

func rootCmd() *cobra.Command {
	opts := &clientOptions{cfg: config.DefaultClientConfig()}

	root := &cobra.Command{
		Use:           "relay-client",
		Short:         "Send actuator commands to a relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	connected := func(cmd *cobra.Command) {
		bindConnFlags(cmd.Flags(), opts)
		cmd.PreRunE = func(cmd *cobra.Command, _ []string) error {
			return loadClientConfig(cmd.Flags(), opts)
		}
	}

	send := sendCmd(opts)
	shell := shellCmd(opts)
	connected(send)
	connected(shell)

	root.AddCommand(send, shell, discoverCmd(), verifyCmd(), certInfoCmd())
	return root
}

func bindConnFlags(f *pflag.FlagSet, opts *clientOptions) {
	cfg := &opts.cfg
	f.StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	f.StringVar(&cfg.Server, config.FlagServer, cfg.Server, "relay address host:port (empty: discover via mDNS)")
	f.StringVar(&cfg.CAFile, config.FlagCA, cfg.CAFile, "CA bundle to verify the relay against")
	f.StringVar(&cfg.CertFile, config.FlagClientCert, cfg.CertFile, "client certificate for mutual TLS")
	f.StringVar(&cfg.KeyFile, config.FlagClientKey, cfg.KeyFile, "client private key for mutual TLS")
	f.StringVar(&cfg.ServerName, config.FlagServerName, cfg.ServerName, "expected server name (default: host of --server)")
	f.DurationVar(&cfg.Timeout, config.FlagTimeout, cfg.Timeout, "connect and response timeout")
	f.BoolVar(&cfg.Insecure, config.FlagInsecure, cfg.Insecure, "skip server certificate verification (testing only)")
}

func loadClientConfig(flags *pflag.FlagSet, opts *clientOptions) error {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return err
	}
	changed := map[string]bool{}
	flags.Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	if err := config.ApplyClientEnv(&opts.cfg, changed); err != nil {
		return err
	}
	return opts.cfg.Validate()
}
