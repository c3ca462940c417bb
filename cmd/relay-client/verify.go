package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/actuator-relay/relay-go/pkg/cert"
	"github.com/actuator-relay/relay-go/pkg/command"
	"github.com/actuator-relay/relay-go/pkg/discovery"
)

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <line>",
		Short: "Check the checksum of a device line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			line := []byte(strings.TrimRight(args[0], "\r\n") + "\n")
			if err := command.Verify(line); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
}

func certInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cert-info <file.crt>",
		Short: "Show a certificate's names, validity and relay fingerprint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cert.ReadCertFile(args[0])
			if err != nil {
				return err
			}
			info := cert.GetInfo(c)
			out := cmd.OutOrStdout()
			now := time.Now()

			fmt.Fprintf(out, "Subject:     %s\n", info.CommonName)
			fmt.Fprintf(out, "Issuer:      %s\n", info.Issuer)
			fmt.Fprintf(out, "Valid:       %s to %s\n", info.NotBefore.Format(time.DateOnly), info.NotAfter.Format(time.DateOnly))
			fmt.Fprintf(out, "CA:          %t\n", info.IsCA)
			if names := append(append([]string{}, info.DNSNames...), info.IPs...); len(names) > 0 {
				fmt.Fprintf(out, "Names:       %s\n", strings.Join(names, ", "))
			}
			fmt.Fprintf(out, "Fingerprint: %s\n", discovery.CertificateFingerprint(c))

			switch {
			case info.IsExpired(now):
				fmt.Fprintln(out, "Status:      EXPIRED")
			case info.NeedsRenewal(now):
				fmt.Fprintf(out, "Status:      renew soon (%d days left)\n", int(info.NotAfter.Sub(now).Hours()/24))
			default:
				fmt.Fprintln(out, "Status:      valid")
			}
			return nil
		},
	}
}
