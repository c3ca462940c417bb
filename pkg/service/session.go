package service

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/actuator-relay/relay-go/pkg/command"
	"github.com/actuator-relay/relay-go/pkg/dispatch"
	"github.com/actuator-relay/relay-go/pkg/log"
)

// SessionState is the state of a session handler.
type SessionState uint32

const (
	// StateAwaitingFrame - blocked reading the next frame.
	StateAwaitingFrame SessionState = iota

	// StateProcessing - parsing a frame and queueing its device line.
	StateProcessing

	// StateResponding - sending the acknowledgement.
	StateResponding

	// StateTerminated - the connection is closed.
	StateTerminated
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case StateAwaitingFrame:
		return "AWAITING_FRAME"
	case StateProcessing:
		return "PROCESSING"
	case StateResponding:
		return "RESPONDING"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// sessionHandler runs the read-process-respond loop for one session.
type sessionHandler struct {
	session  *Session
	queue    *dispatch.Queue
	registry *Registry
	logger   *slog.Logger
	plog     log.Logger

	idleTimeout time.Duration

	// stopping is shared with the service and set before sessions are
	// interrupted.
	stopping *atomic.Bool
}

// run serves the session until it terminates. It always removes the
// session from the registry and closes the connection.
func (h *sessionHandler) run() {
	conn := h.session.conn
	reason := "peer closed"

	defer func() {
		h.setState(StateTerminated, reason)
		if !h.registry.Remove(h.session) {
			h.logger.Debug("session already removed", "conn", h.session.ID)
		}
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			h.logger.Debug("close failed", "conn", h.session.ID, "error", err)
		}
		h.logger.Info("session closed", "conn", h.session.ID, "reason", reason)
	}()

	h.logger.Info("session opened", "conn", h.session.ID, "remote", h.session.RemoteAddr)

	for {
		h.setState(StateAwaitingFrame, "")

		payload, err := h.readFrame()
		if err != nil {
			reason = h.readFailure(err)
			return
		}
		seq := h.session.touch()

		h.setState(StateProcessing, "")
		var keepOpen bool
		reason, keepOpen = h.process(seq, payload)
		if !keepOpen {
			return
		}
	}
}

// readFrame waits for the next frame, honoring shutdown and idle timeout.
func (h *sessionHandler) readFrame() ([]byte, error) {
	conn := h.session.conn

	var deadline time.Time
	if h.idleTimeout > 0 {
		deadline = time.Now().Add(h.idleTimeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	// Checked after arming the deadline: an interrupt issued after this
	// point overrides it, one issued before is seen here.
	if h.stopping.Load() {
		return nil, errShutdown
	}
	return conn.ReadFrame()
}

var errShutdown = errors.New("shutdown")

// readFailure classifies a read error and returns the termination reason.
func (h *sessionHandler) readFailure(err error) string {
	var ne net.Error
	switch {
	case errors.Is(err, errShutdown):
		return "shutdown"
	case errors.Is(err, io.EOF):
		return "peer closed"
	case errors.As(err, &ne) && ne.Timeout():
		if h.stopping.Load() {
			return "shutdown"
		}
		return "idle timeout"
	default:
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		h.logger.Warn("read failed", "conn", h.session.ID, "error", err)
		h.logError("read", err)
		return "transport error"
	}
}

// process handles one frame. It returns whether the session stays open
// and, if not, why.
func (h *sessionHandler) process(seq uint64, payload []byte) (string, bool) {
	id := h.session.ID

	cmd, err := command.Split(payload)
	if err != nil {
		h.logger.Warn("malformed command", "conn", id, "seq", seq, "error", err)
		h.logError("parse", err)
		if err := h.respond(command.Error()); err != nil {
			return "transport error", false
		}
		return "", true
	}

	line := cmd.Line()
	h.logCommand(seq, cmd)

	entry, err := h.queue.Enqueue(id, line)
	switch {
	case errors.Is(err, dispatch.ErrQueueFull):
		h.logger.Warn("dispatch queue full, command rejected", "conn", id, "seq", seq, "command", cmd.String())
		h.logError("enqueue", err)
		if err := h.respond(command.Error()); err != nil {
			return "transport error", false
		}
		return "", true
	case err != nil:
		h.logger.Warn("dispatch queue closed, command rejected", "conn", id, "seq", seq, "command", cmd.String())
		h.logError("enqueue", err)
		_ = h.respond(command.Error())
		return "queue closed", false
	}

	h.logger.Debug("command queued", "conn", id, "seq", seq, "entry", entry.Seq, "command", cmd.String())

	h.setState(StateResponding, "")
	if err := h.respond(command.Acknowledge()); err != nil {
		// Best effort; the connection is most likely gone.
		_ = h.respond(command.Error())
		return "transport error", false
	}
	return "", true
}

func (h *sessionHandler) respond(c command.Command) error {
	if err := h.session.conn.Send([]byte(c.String())); err != nil {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		h.logger.Debug("send failed", "conn", h.session.ID, "response", c.String(), "error", err)
		h.logError("send", err)
		return err
	}
	return nil
}

func (h *sessionHandler) setState(state SessionState, reason string) {
	old := h.session.setState(state)
	if old == state {
		return
	}
	h.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: h.session.ID,
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySession,
			OldState: old.String(),
			NewState: state.String(),
			Reason:   reason,
		},
	})
}

func (h *sessionHandler) logCommand(seq uint64, cmd command.Command) {
	h.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: h.session.ID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerSession,
		Category:     log.CategoryMessage,
		Command: &log.CommandEvent{
			Action:   cmd.Action,
			Value:    cmd.Value,
			Checksum: command.ChecksumHex(cmd.String()),
			Seq:      seq,
		},
	})
}

func (h *sessionHandler) logError(context string, err error) {
	h.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: h.session.ID,
		Layer:        log.LayerSession,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerSession,
			Message: err.Error(),
			Context: context,
		},
	})
}
