package dispatch

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize is the queue capacity used when none is configured.
const DefaultQueueSize = 64

// Entry is one device line waiting to be written.
type Entry struct {
	// Seq is assigned by the queue, starting at 1. Rejected entries
	// consume a number too, so gaps mark refused commands.
	Seq uint64

	// ConnID identifies the session that produced the entry.
	ConnID string

	// Data is the formatted device line.
	Data []byte

	// EnqueuedAt is set by the queue.
	EnqueuedAt time.Time
}

// Queue is a bounded multi-producer single-consumer FIFO.
type Queue struct {
	ch chan Entry

	// mu orders Enqueue against Close: senders hold the read lock, so
	// the channel is never closed under a sender.
	mu     sync.RWMutex
	closed bool

	seq atomic.Uint64
}

// NewQueue creates a queue. A capacity <= 0 selects DefaultQueueSize.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue{ch: make(chan Entry, capacity)}
}

// Enqueue appends an entry without blocking and returns it with its
// sequence number and timestamp filled in.
func (q *Queue) Enqueue(connID string, data []byte) (Entry, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return Entry{}, ErrQueueClosed
	}

	e := Entry{
		Seq:        q.seq.Add(1),
		ConnID:     connID,
		Data:       data,
		EnqueuedAt: time.Now(),
	}
	select {
	case q.ch <- e:
	default:
		return Entry{}, ErrQueueFull
	}
	return e, nil
}

// Close stops accepting entries. Entries already queued remain
// available to the consumer. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Closed reports whether Close was called.
func (q *Queue) Closed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}
