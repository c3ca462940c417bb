package log

import (
	"strings"
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID uniquely identifies the client connection (UUID).
	// Empty for device-layer events not tied to a connection.
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates data flow relative to the relay.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the peer address (IP:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Transport layer
	Command     *CommandEvent     `cbor:"11,keyasint,omitempty"` // Session layer (decoded)
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Connection/session state
	Dispatch    *DispatchEvent    `cbor:"13,keyasint,omitempty"` // Device layer
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates data received by the relay.
	DirectionIn Direction = 0
	// DirectionOut indicates data sent by the relay.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerSession is the per-connection command layer.
	LayerSession Layer = 1
	// LayerDevice is the serial dispatch layer.
	LayerDevice Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerSession:
		return "SESSION"
	case LayerDevice:
		return "DEVICE"
	default:
		return "UNKNOWN"
	}
}

// ParseLayer converts a case-insensitive layer name to a Layer.
func ParseLayer(s string) (Layer, bool) {
	switch strings.ToLower(s) {
	case "transport":
		return LayerTransport, true
	case "session":
		return LayerSession, true
	case "device":
		return LayerDevice, true
	}
	return 0, false
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a frame or command.
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryDispatch indicates a device dispatch outcome.
	CategoryDispatch Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryDispatch:
		return "DISPATCH"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the frame size in bytes (including length prefix).
	Size int `cbor:"1,keyasint"`

	// Data is the frame payload.
	Data []byte `cbor:"2,keyasint,omitempty"`
}

// CommandEvent captures a decoded client command at the session layer.
type CommandEvent struct {
	// Action is the first token of the command.
	Action string `cbor:"1,keyasint"`

	// Value is everything after the first separator.
	Value string `cbor:"2,keyasint,omitempty"`

	// Checksum is the CRC-16 rendered into the device line.
	Checksum string `cbor:"3,keyasint,omitempty"`

	// Seq is the per-session frame sequence number.
	Seq uint64 `cbor:"4,keyasint"`
}

// StateChangeEvent captures connection and session lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityConnection indicates a connection state change.
	StateEntityConnection StateEntity = 0
	// StateEntitySession indicates a session handler state change.
	StateEntitySession StateEntity = 1
	// StateEntityWriter indicates a device writer state change.
	StateEntityWriter StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntitySession:
		return "SESSION"
	case StateEntityWriter:
		return "WRITER"
	default:
		return "UNKNOWN"
	}
}

// DispatchEvent captures the fate of one dispatch entry.
type DispatchEvent struct {
	// Seq is the queue-wide entry sequence number.
	Seq uint64 `cbor:"1,keyasint"`

	// Outcome tells whether the entry reached the device.
	Outcome DispatchOutcome `cbor:"2,keyasint"`

	// Line is the formatted device line.
	Line []byte `cbor:"3,keyasint,omitempty"`

	// QueueDelay is the time the entry spent in the queue. Stored as nanoseconds.
	QueueDelay time.Duration `cbor:"4,keyasint,omitempty"`
}

// DispatchOutcome indicates what happened to a dispatch entry.
type DispatchOutcome uint8

const (
	// DispatchWritten indicates the entry was written to the device.
	DispatchWritten DispatchOutcome = 0
	// DispatchFailed indicates the device write failed.
	DispatchFailed DispatchOutcome = 1
	// DispatchDropped indicates the entry was discarded after a writer failure.
	DispatchDropped DispatchOutcome = 2
)

// String returns the outcome name.
func (o DispatchOutcome) String() string {
	switch o {
	case DispatchWritten:
		return "WRITTEN"
	case DispatchFailed:
		return "FAILED"
	case DispatchDropped:
		return "DROPPED"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"3,keyasint,omitempty"`
}
