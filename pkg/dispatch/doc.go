// Package dispatch serializes device lines from many sessions onto one
// device.
//
// Sessions Enqueue entries; a single Writer goroutine owns the device
// and writes entries one at a time in arrival order. Enqueue never
// blocks: a full queue is reported to the caller, who decides what to
// tell its client.
//
// A failed device write stops the Writer. The queue is closed so that
// sessions see ErrQueueClosed, and entries still buffered are reported
// as dropped instead of being written.
package dispatch
