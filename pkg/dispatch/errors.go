package dispatch

import "errors"

// Dispatch errors.
var (
	// ErrQueueFull is returned by Enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("dispatch queue full")

	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("dispatch queue closed")

	// ErrDeviceWrite wraps a failed device write. It is fatal to the Writer.
	ErrDeviceWrite = errors.New("device write failed")
)
