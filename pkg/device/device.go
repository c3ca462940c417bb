package device

import (
	"io"
	"sync"
)

// Device is a byte sink that accepts formatted device lines.
type Device interface {
	io.Writer

	// Name identifies the device in logs.
	Name() string

	// Close releases the device.
	Close() error
}

// WriterDevice adapts an io.Writer to Device. It is used for dry runs
// (lines go to stdout) and in tests.
type WriterDevice struct {
	name string
	w    io.Writer

	mu     sync.Mutex
	closed bool
}

// NewWriterDevice wraps w. If w implements io.Closer it is closed by Close.
func NewWriterDevice(name string, w io.Writer) *WriterDevice {
	return &WriterDevice{name: name, w: w}
}

// Write writes p to the underlying writer.
func (d *WriterDevice) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, ErrClosed
	}
	return d.w.Write(p)
}

// Name returns the device name.
func (d *WriterDevice) Name() string {
	return d.name
}

// Close closes the underlying writer when it is closable.
func (d *WriterDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if c, ok := d.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
