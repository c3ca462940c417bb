// Command relay-log views and analyzes relay protocol log files.
//
// Log files are written by relay-server when started with --protocol-log.
//
// Usage:
//
//	relay-log <command> [flags] <file.rlog>
//
// Examples:
//
//	# View all events
//	relay-log view relay.rlog
//
//	# View only device dispatch outcomes
//	relay-log view --category dispatch relay.rlog
//
//	# Export to CSV
//	relay-log export --format csv -o relay.csv relay.rlog
//
//	# Keep one connection's events
//	relay-log filter --conn-id abc12345 -o conn.rlog relay.rlog
//
//	# Show statistics
//	relay-log stats relay.rlog
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/actuator-relay/relay-go/cmd/relay-log/commands"
)

func main() {
	root := &cobra.Command{
		Use:           "relay-log",
		Short:         "Relay protocol log analyzer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(viewCmd(), exportCmd(), filterCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func viewCmd() *cobra.Command {
	var connID, layer, direction, category string

	cmd := &cobra.Command{
		Use:   "view [flags] <file.rlog>",
		Short: "View log file in human-readable format",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := commands.ViewFilter{ConnID: connID}
			if layer != "" {
				l, err := commands.ParseLayerFlag(layer)
				if err != nil {
					return err
				}
				filter.Layer = &l
			}
			if direction != "" {
				d, err := commands.ParseDirectionFlag(direction)
				if err != nil {
					return err
				}
				filter.Direction = &d
			}
			if category != "" {
				c, err := commands.ParseCategoryFlag(category)
				if err != nil {
					return err
				}
				filter.Category = &c
			}
			return commands.RunView(args[0], filter, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&connID, "conn-id", "", "Filter by connection ID prefix")
	cmd.Flags().StringVar(&layer, "layer", "", "Filter by layer (transport, session, device)")
	cmd.Flags().StringVar(&direction, "direction", "", "Filter by direction (in, out)")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category (message, state, dispatch, error)")
	return cmd
}

func exportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export [flags] <file.rlog>",
		Short: "Export log file to JSON lines or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunExport(args[0], format, output)
		},
	}

	cmd.Flags().StringVar(&format, "format", "jsonl", "Output format (jsonl, csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func filterCmd() *cobra.Command {
	var opts commands.FilterOptions

	cmd := &cobra.Command{
		Use:   "filter [flags] <file.rlog>",
		Short: "Filter log file and write to new file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := commands.RunFilter(args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Filtered %d events to %s\n", n, opts.Output)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Output, "output", "o", "", "Output file (required)")
	f.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID prefix")
	f.StringVar(&opts.RemoteAddr, "remote", "", "Filter by peer address")
	f.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	f.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	f.StringVar(&opts.Layer, "layer", "", "Filter by layer (transport, session, device)")
	f.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	f.StringVar(&opts.Category, "category", "", "Filter by category (message, state, dispatch, error)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <file.rlog>",
		Short: "Show statistics about the log file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunStats(args[0], cmd.OutOrStdout())
		},
	}
}
