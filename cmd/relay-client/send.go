package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/actuator-relay/relay-go/pkg/command"
)

func sendCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send [flags] <command>...",
		Short: "Send one or more commands over a single connection",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Parse everything first so a typo sends nothing.
			cmds := make([]command.Command, 0, len(args))
			for _, a := range args {
				c, err := command.Parse(a)
				if err != nil {
					return err
				}
				cmds = append(cmds, c)
			}

			out := cmd.OutOrStdout()
			rc, err := connect(cmd.Context(), opts.cfg, out)
			if err != nil {
				return err
			}
			defer rc.Close()

			var rejected error
			for _, c := range cmds {
				resp, err := rc.send(c)
				switch {
				case errors.Is(err, errRejected):
					fmt.Fprintf(out, "%s: %s\n", c, resp)
					rejected = errors.Join(rejected, err)
				case err != nil:
					return fmt.Errorf("%s: %w", c, err)
				default:
					fmt.Fprintf(out, "%s: %s\n", c, resp)
				}
			}
			return rejected
		},
	}
}
