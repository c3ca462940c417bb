package command

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/actuator-relay/relay-go/pkg/transport"
)

// Separator divides action from value.
const Separator = "-"

// Response actions.
const (
	ActionAcknowledge = "acknowledge"
	ActionError       = "error"
)

// Command errors.
var (
	// ErrMalformedCommand indicates a payload that is not valid UTF-8
	// or has no separator.
	ErrMalformedCommand = errors.New("malformed command")

	// ErrUnknownCommand indicates input outside the client grammar.
	ErrUnknownCommand = errors.New("unknown command")
)

// Command is an action with its argument.
type Command struct {
	Action string
	Value  string
}

// String returns the wire text "action-value".
func (c Command) String() string {
	return c.Action + Separator + c.Value
}

// Packet returns the command as a length-prefixed frame.
func (c Command) Packet() ([]byte, error) {
	return transport.Encode([]byte(c.String()))
}

// Line returns the checksummed device line for the command.
func (c Command) Line() []byte {
	return Format(c.Action, c.Value)
}

// Split parses a received payload. The action is everything before the
// first separator; the value is the rest, including any further
// separators.
func Split(payload []byte) (Command, error) {
	if !utf8.Valid(payload) {
		return Command{}, fmt.Errorf("%w: invalid UTF-8", ErrMalformedCommand)
	}
	action, value, ok := strings.Cut(string(payload), Separator)
	if !ok {
		return Command{}, fmt.Errorf("%w: missing %q in %q", ErrMalformedCommand, Separator, payload)
	}
	return Command{Action: action, Value: value}, nil
}

// Acknowledge is the response to a command that was queued for the device.
func Acknowledge() Command {
	return Command{Action: ActionAcknowledge}
}

// Error is the response to a command that was not queued.
func Error() Command {
	return Command{Action: ActionError}
}

// IsAcknowledge reports whether a response payload acknowledges a command.
func IsAcknowledge(payload []byte) bool {
	c, err := Split(payload)
	return err == nil && c.Action == ActionAcknowledge
}
