package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/actuator-relay/relay-go/pkg/discovery"
	"github.com/actuator-relay/relay-go/pkg/version"
)

func discoverCmd() *cobra.Command {
	var timeout time.Duration
	var iface string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List relays advertised on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{
				BrowseTimeout: timeout,
				Interface:     iface,
			})
			defer browser.Stop()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			results, err := browser.Browse(ctx)
			if err != nil {
				return err
			}

			var found []*discovery.RelayService
			for svc := range results {
				found = append(found, svc)
			}
			printRelays(cmd.OutOrStdout(), found)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", discovery.BrowseTimeout, "how long to browse")
	cmd.Flags().StringVar(&iface, "interface", "", "network interface to browse on (default: all)")
	return cmd
}

func printRelays(w io.Writer, relays []*discovery.RelayService) {
	if len(relays) == 0 {
		fmt.Fprintln(w, "No relays found")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tADDRESS\tVERSION\tDEVICE\tMTLS\tFINGERPRINT")
	for _, r := range relays {
		mtls := "no"
		if r.MutualTLS {
			mtls = "yes"
		}
		ver := r.Version
		if version.Check(r.Version) != nil {
			ver += " (incompatible)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.InstanceName, r.Dial(), ver, r.Device, mtls, r.Fingerprint)
	}
	tw.Flush()
}
