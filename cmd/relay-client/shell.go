package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/actuator-relay/relay-go/pkg/command"
)

func shellCmd(opts *clientOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive command prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "relay> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return fmt.Errorf("failed to create readline: %w", err)
			}
			defer rl.Close()

			rc, err := connect(cmd.Context(), opts.cfg, rl.Stdout())
			if err != nil {
				return err
			}
			defer rc.Close()

			return runShell(rl, rc)
		},
	}
}

// lineReader is the part of readline the loop needs.
type lineReader interface {
	Readline() (string, error)
	Stdout() io.Writer
}

// commandSender delivers one command.
type commandSender interface {
	send(command.Command) (command.Command, error)
}

func runShell(rl lineReader, rc commandSender) error {
	out := rl.Stdout()
	printShellHelp(out)

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(out, "Exiting...")
			return nil
		}

		input := strings.TrimSpace(line)
		switch strings.ToLower(input) {
		case "":
			continue
		case "help", "?":
			printShellHelp(out)
			continue
		case "quit", "exit", "q":
			fmt.Fprintln(out, "Exiting...")
			return nil
		}

		c, err := command.Parse(input)
		if err != nil {
			fmt.Fprintf(out, "%v (type 'help' for commands)\n", err)
			continue
		}

		resp, err := rc.send(c)
		switch {
		case errors.Is(err, errRejected):
			fmt.Fprintf(out, "rejected: %s\n", resp)
		case err != nil:
			// The connection is unusable after a transport error.
			return err
		default:
			fmt.Fprintf(out, "%s\n", resp)
		}
	}
}

func printShellHelp(w io.Writer) {
	fmt.Fprintln(w, `Commands:
  green-on | green-off   Green LED
  blue-on  | blue-off    Blue LED
  servo-<position>       Move the servo
  querystatus-<arg>      Ask the controller for status
  help                   Show this help
  quit                   Exit`)
}
