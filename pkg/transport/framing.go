package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/actuator-relay/relay-go/pkg/log"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 1

	// MaxPayloadSize is the largest payload a single length byte can describe.
	MaxPayloadSize = 255

	// readChunkSize is how much FrameReader asks the transport for per read.
	readChunkSize = 1024
)

// Framing errors.
var (
	// ErrFrameTooLarge indicates a payload longer than MaxPayloadSize.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrIncompletePacket indicates the buffer does not yet hold a whole frame.
	// It is transient: more bytes are needed, nothing is wrong.
	ErrIncompletePacket = errors.New("incomplete packet")

	// ErrFrameTruncated indicates the peer closed the stream mid-frame.
	ErrFrameTruncated = errors.New("frame truncated")
)

// Encode prefixes payload with its one-byte length.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), MaxPayloadSize)
	}
	frame := make([]byte, LengthPrefixSize+len(payload))
	frame[0] = byte(len(payload))
	copy(frame[LengthPrefixSize:], payload)
	return frame, nil
}

// Decode reads one frame from the start of buf. It returns the payload
// (aliasing buf) and the number of bytes the frame occupied.
func Decode(buf []byte) (payload []byte, consumed int, err error) {
	if len(buf) < LengthPrefixSize {
		return nil, 0, ErrIncompletePacket
	}
	length := int(buf[0])
	consumed = LengthPrefixSize + length
	if len(buf) < consumed {
		return nil, 0, ErrIncompletePacket
	}
	return buf[LengthPrefixSize:consumed], consumed, nil
}

// FrameSize returns the total frame size including the length prefix.
func FrameSize(payloadSize int) int {
	return LengthPrefixSize + payloadSize
}

// FrameBuffer accumulates stream bytes and splits them into frames.
// A single write may carry several frames and a frame may span several
// writes. Not safe for concurrent use.
type FrameBuffer struct {
	buf []byte
}

// Write appends stream bytes. It never fails.
func (b *FrameBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// Next removes and returns the next complete payload, or
// ErrIncompletePacket if none is buffered yet.
func (b *FrameBuffer) Next() ([]byte, error) {
	payload, n, err := Decode(b.buf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(payload))
	copy(out, payload)

	rest := len(b.buf) - n
	copy(b.buf, b.buf[n:])
	b.buf = b.buf[:rest]
	return out, nil
}

// Buffered returns the number of bytes waiting for a complete frame.
func (b *FrameBuffer) Buffered() int {
	return len(b.buf)
}

// FrameWriter writes length-prefixed frames to an underlying writer.
type FrameWriter struct {
	w  io.Writer
	mu sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewFrameWriter creates a new frame writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.logger = logger
	fw.connID = connID
}

// WriteFrame writes a length-prefixed frame in a single write call.
// Thread-safe: can be called from multiple goroutines.
func (fw *FrameWriter) WriteFrame(payload []byte) error {
	frame, err := Encode(payload)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(makeFrameEvent(fw.connID, payload, log.DirectionOut))
	}
	return nil
}

// FrameReader reads length-prefixed frames from an underlying reader,
// buffering partial reads.
type FrameReader struct {
	r     io.Reader
	buf   FrameBuffer
	chunk []byte

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewFrameReader creates a new frame reader.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:     r,
		chunk: make([]byte, readChunkSize),
	}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (fr *FrameReader) SetLogger(logger log.Logger, connID string) {
	fr.logger = logger
	fr.connID = connID
}

// ReadFrame returns the next frame payload. It returns io.EOF when the
// peer closed cleanly between frames and ErrFrameTruncated when it
// closed in the middle of one.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	for {
		if payload, err := fr.buf.Next(); err == nil {
			if fr.logger != nil {
				fr.logger.Log(makeFrameEvent(fr.connID, payload, log.DirectionIn))
			}
			return payload, nil
		}

		n, err := fr.r.Read(fr.chunk)
		if n > 0 {
			fr.buf.Write(fr.chunk[:n])
		}
		if err == nil {
			continue
		}
		if n > 0 {
			// Hand out what arrived with the error first; the error
			// resurfaces on the next call.
			if _, _, nerr := Decode(fr.buf.buf); nerr == nil {
				continue
			}
		}
		if errors.Is(err, io.EOF) {
			if fr.buf.Buffered() == 0 {
				return nil, io.EOF
			}
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}
}

// Buffered returns the number of bytes read but not yet returned as a frame.
func (fr *FrameReader) Buffered() int {
	return fr.buf.Buffered()
}

func makeFrameEvent(connID string, payload []byte, direction log.Direction) log.Event {
	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size: FrameSize(len(payload)),
			Data: payload,
		},
	}
}

// Framer combines frame reading and writing.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a new framer for bidirectional communication.
func NewFramer(rw io.ReadWriter) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw),
		FrameWriter: NewFrameWriter(rw),
	}
}

// SetLogger configures logging for both reader and writer.
// Pass nil to disable logging.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.FrameReader.SetLogger(logger, connID)
	f.FrameWriter.SetLogger(logger, connID)
}
