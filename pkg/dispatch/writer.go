package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/actuator-relay/relay-go/pkg/log"
)

// Writer states as recorded in the protocol log.
const (
	writerRunning = "RUNNING"
	writerStopped = "STOPPED"
	writerFailed  = "FAILED"
)

// WriterConfig configures a Writer.
type WriterConfig struct {
	// Logger for operational output (optional).
	Logger *slog.Logger

	// ProtocolLogger records one dispatch event per entry (optional).
	ProtocolLogger log.Logger

	// OnWrite is called after an entry reached the device.
	OnWrite func(e Entry)

	// OnError is called once when a device write fails.
	OnError func(e Entry, err error)

	// OnDrop is called for each entry discarded after a failure.
	OnDrop func(e Entry)
}

// Stats counts entry outcomes.
type Stats struct {
	Written uint64
	Dropped uint64
	Failed  uint64
}

// Writer is the single consumer of a Queue. It owns the device for the
// duration of Run.
type Writer struct {
	queue  *Queue
	dev    io.Writer
	config WriterConfig
	logger *slog.Logger
	plog   log.Logger

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64

	done chan struct{}
	mu   sync.Mutex
	err  error
}

// NewWriter creates a writer draining queue into dev.
func NewWriter(queue *Queue, dev io.Writer, config WriterConfig) *Writer {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Writer{
		queue:  queue,
		dev:    dev,
		config: config,
		logger: logger,
		plog:   log.OrNoop(config.ProtocolLogger),
		done:   make(chan struct{}),
	}
}

// Run writes entries in queue order until the queue is closed and empty.
// Cancelling ctx closes the queue; entries already queued are still
// written. Run returns the device write error that stopped it, if any.
// It must be called at most once.
func (w *Writer) Run(ctx context.Context) error {
	defer close(w.done)

	stop := context.AfterFunc(ctx, w.queue.Close)
	defer stop()

	w.logState("", writerRunning, "")

	var failed error
	for e := range w.queue.ch {
		if failed != nil {
			w.drop(e)
			continue
		}
		if err := w.write(e); err != nil {
			failed = fmt.Errorf("%w: entry %d: %w", ErrDeviceWrite, e.Seq, err)
			w.fail(e, failed)
		}
	}

	if failed != nil {
		return failed
	}
	w.logState(writerRunning, writerStopped, "queue closed")
	return nil
}

// Done is closed when Run returns.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Err returns the failure that stopped the writer, or nil.
func (w *Writer) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Stats returns outcome counts so far.
func (w *Writer) Stats() Stats {
	return Stats{
		Written: w.written.Load(),
		Dropped: w.dropped.Load(),
		Failed:  w.failed.Load(),
	}
}

// write delivers one entry, completing short writes.
func (w *Writer) write(e Entry) error {
	data := e.Data
	for len(data) > 0 {
		n, err := w.dev.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}

	w.written.Add(1)
	delay := time.Since(e.EnqueuedAt)
	w.logger.Debug("entry written", "seq", e.Seq, "conn", e.ConnID, "queue_delay", delay)
	w.logDispatch(e, log.DispatchWritten, delay)
	if w.config.OnWrite != nil {
		w.config.OnWrite(e)
	}
	return nil
}

// fail records the first device failure and stops intake.
func (w *Writer) fail(e Entry, err error) {
	w.failed.Add(1)
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()

	w.queue.Close()

	w.logger.Error("device write failed, writer stopping", "seq", e.Seq, "conn", e.ConnID, "error", err)
	w.logDispatch(e, log.DispatchFailed, time.Since(e.EnqueuedAt))
	w.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: e.ConnID,
		Layer:        log.LayerDevice,
		Category:     log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerDevice,
			Message: err.Error(),
			Context: "write",
		},
	})
	w.logState(writerRunning, writerFailed, err.Error())

	if w.config.OnError != nil {
		w.config.OnError(e, err)
	}
}

func (w *Writer) drop(e Entry) {
	w.dropped.Add(1)
	w.logger.Warn("entry dropped", "seq", e.Seq, "conn", e.ConnID)
	w.logDispatch(e, log.DispatchDropped, time.Since(e.EnqueuedAt))
	if w.config.OnDrop != nil {
		w.config.OnDrop(e)
	}
}

func (w *Writer) logDispatch(e Entry, outcome log.DispatchOutcome, delay time.Duration) {
	w.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: e.ConnID,
		Direction:    log.DirectionOut,
		Layer:        log.LayerDevice,
		Category:     log.CategoryDispatch,
		Dispatch: &log.DispatchEvent{
			Seq:        e.Seq,
			Outcome:    outcome,
			Line:       e.Data,
			QueueDelay: delay,
		},
	})
}

func (w *Writer) logState(oldState, newState, reason string) {
	w.plog.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerDevice,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityWriter,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
