package command

import (
	"fmt"
	"strings"
)

// Client-side command vocabulary.
var (
	ledColors  = map[string]bool{"green": true, "blue": true}
	ledActions = map[string]bool{"on": true, "off": true}
	statuses   = map[string]bool{"querystatus": true, ActionAcknowledge: true, ActionError: true}
)

// ActionServo positions the servo; its value is passed through unchanged.
const ActionServo = "servo"

// Parse validates operator input against the client command grammar:
//
//	green-on | green-off | blue-on | blue-off
//	servo-<argument>
//	querystatus-<argument> | acknowledge-<argument> | error-<argument>
//
// Matching is case-insensitive. The action is lower-cased; LED states are
// lower-cased; servo and status arguments are kept as typed.
func Parse(input string) (Command, error) {
	input = strings.TrimSpace(input)
	action, value, ok := strings.Cut(input, Separator)
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, input)
	}
	action = strings.ToLower(action)

	switch {
	case ledColors[action]:
		state := strings.ToLower(value)
		if !ledActions[state] {
			return Command{}, fmt.Errorf("%w: %s takes on or off, got %q", ErrUnknownCommand, action, value)
		}
		return Command{Action: action, Value: state}, nil
	case action == ActionServo:
		return Command{Action: action, Value: value}, nil
	case statuses[action]:
		return Command{Action: action, Value: value}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, input)
	}
}
