package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/actuator-relay/relay-go/pkg/cert"
)

type gencertOptions struct {
	dir      string
	hosts    []string
	clients  []string
	validity time.Duration
	force    bool
}

func gencertCmd() *cobra.Command {
	opts := gencertOptions{hosts: []string{"localhost", "127.0.0.1"}}

	cmd := &cobra.Command{
		Use:   "gencert",
		Short: "Create a private CA, a server certificate and optional client certificates",
		Long: `gencert writes ca.crt/ca.key, server.crt/server.key and one
<name>.crt/<name>.key pair per --client into --dir. An existing CA in
--dir is reused so that new certificates chain to it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGencert(opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dir, "dir", "certs", "output directory")
	f.StringSliceVar(&opts.hosts, "host", opts.hosts, "server DNS name or IP (repeatable)")
	f.StringSliceVar(&opts.clients, "client", nil, "issue a client certificate with this name (repeatable)")
	f.DurationVar(&opts.validity, "validity", cert.LeafValidity, "server and client certificate lifetime")
	f.BoolVar(&opts.force, "force", false, "overwrite existing server and client certificates")
	return cmd
}

func runGencert(opts gencertOptions, out io.Writer) error {
	if err := os.MkdirAll(opts.dir, 0o755); err != nil {
		return err
	}
	path := func(name string) string { return filepath.Join(opts.dir, name) }

	caCert, caKey := path("ca.crt"), path("ca.key")
	var ca *cert.KeyPair
	if fileExists(caCert) && fileExists(caKey) {
		loaded, err := cert.LoadKeyPair(caCert, caKey)
		if err != nil {
			return err
		}
		ca = loaded
		fmt.Fprintf(out, "Using existing CA %s\n", caCert)
	} else {
		generated, err := cert.GenerateCA("Relay CA", cert.CAValidity)
		if err != nil {
			return err
		}
		if err := generated.WriteFiles(caCert, caKey); err != nil {
			return err
		}
		ca = generated
		fmt.Fprintf(out, "Created CA %s\n", caCert)
	}

	server, err := ca.IssueServer("relay-server", opts.hosts, opts.validity)
	if err != nil {
		return err
	}
	if err := writePair(server, path("server.crt"), path("server.key"), opts.force); err != nil {
		return err
	}
	fmt.Fprintf(out, "Created server certificate %s for %s\n", path("server.crt"), strings.Join(opts.hosts, ", "))

	for _, name := range opts.clients {
		client, err := ca.IssueClient(name, opts.validity)
		if err != nil {
			return err
		}
		c, k := path(name+".crt"), path(name+".key")
		if err := writePair(client, c, k, opts.force); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created client certificate %s\n", c)
	}
	return nil
}

func writePair(kp *cert.KeyPair, certPath, keyPath string, force bool) error {
	if !force && (fileExists(certPath) || fileExists(keyPath)) {
		return fmt.Errorf("%s exists (use --force to overwrite)", certPath)
	}
	return kp.WriteFiles(certPath, keyPath)
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
