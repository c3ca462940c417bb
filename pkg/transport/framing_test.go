package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/actuator-relay/relay-go/pkg/log"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for size := 0; size <= MaxPayloadSize; size++ {
		payload := bytes.Repeat([]byte{'a'}, size)

		frame, err := Encode(payload)
		if err != nil {
			t.Fatalf("Encode(%d bytes) failed: %v", size, err)
		}
		if len(frame) != FrameSize(size) {
			t.Fatalf("frame size = %d, want %d", len(frame), FrameSize(size))
		}
		if frame[0] != byte(size) {
			t.Fatalf("length byte = %d, want %d", frame[0], size)
		}

		got, consumed, err := Decode(frame)
		if err != nil {
			t.Fatalf("Decode(%d bytes) failed: %v", size, err)
		}
		if consumed != len(frame) {
			t.Errorf("consumed = %d, want %d", consumed, len(frame))
		}
		if !bytes.Equal(got, payload) {
			t.Errorf("payload mismatch for size %d", size)
		}
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := Encode(bytes.Repeat([]byte{'x'}, MaxPayloadSize+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeIncomplete(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"prefix only", []byte{5}},
		{"partial payload", []byte{5, 'a', 'b'}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, consumed, err := Decode(tt.buf)
			if !errors.Is(err, ErrIncompletePacket) {
				t.Errorf("expected ErrIncompletePacket, got %v", err)
			}
			if consumed != 0 {
				t.Errorf("consumed = %d, want 0", consumed)
			}
		})
	}
}

func TestDecodeLeavesTrailingBytes(t *testing.T) {
	buf := []byte{2, 'o', 'k', 3, 'n'}
	payload, consumed, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if string(payload) != "ok" || consumed != 3 {
		t.Errorf("got %q/%d, want \"ok\"/3", payload, consumed)
	}
}

func TestFrameBufferSplitsAndJoins(t *testing.T) {
	var fb FrameBuffer

	first, _ := Encode([]byte("green-on"))
	second, _ := Encode([]byte("red-off"))
	stream := append(first, second...)

	// Feed one byte at a time; each frame appears exactly when complete.
	var got []string
	for _, b := range stream {
		fb.Write([]byte{b})
		for {
			payload, err := fb.Next()
			if errors.Is(err, ErrIncompletePacket) {
				break
			}
			if err != nil {
				t.Fatalf("Next failed: %v", err)
			}
			got = append(got, string(payload))
		}
	}

	if len(got) != 2 || got[0] != "green-on" || got[1] != "red-off" {
		t.Errorf("frames = %q, want [green-on red-off]", got)
	}
	if fb.Buffered() != 0 {
		t.Errorf("Buffered = %d, want 0", fb.Buffered())
	}
}

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"command", []byte("green-on")},
		{"empty", []byte{}},
		{"max size", bytes.Repeat([]byte("y"), MaxPayloadSize)},
		{"binary", []byte{0x00, 0xFF, 0x7F, 0x80}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			writer := NewFrameWriter(buf)
			if err := writer.WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != FrameSize(len(tt.payload)) {
				t.Errorf("frame size = %d, want %d", buf.Len(), FrameSize(len(tt.payload)))
			}

			reader := NewFrameReader(buf)
			got, err := reader.ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload = %q, want %q", got, tt.payload)
			}
		})
	}
}

func TestFrameWriterTooLarge(t *testing.T) {
	buf := new(bytes.Buffer)
	err := NewFrameWriter(buf).WriteFrame(bytes.Repeat([]byte{'x'}, 300))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expected ErrFrameTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("wrote %d bytes for rejected frame", buf.Len())
	}
}

// chunkReader returns at most n bytes per Read.
type chunkReader struct {
	data []byte
	n    int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	k := min(r.n, len(p), len(r.data))
	copy(p, r.data[:k])
	r.data = r.data[k:]
	return k, nil
}

func TestFrameReaderSplitReads(t *testing.T) {
	var stream []byte
	for _, p := range []string{"green-on", "yellow-off", "light-49"} {
		frame, _ := Encode([]byte(p))
		stream = append(stream, frame...)
	}

	for _, chunk := range []int{1, 2, 3, 7, len(stream)} {
		reader := NewFrameReader(&chunkReader{data: bytes.Clone(stream), n: chunk})
		for _, want := range []string{"green-on", "yellow-off", "light-49"} {
			got, err := reader.ReadFrame()
			if err != nil {
				t.Fatalf("chunk %d: ReadFrame failed: %v", chunk, err)
			}
			if string(got) != want {
				t.Errorf("chunk %d: got %q, want %q", chunk, got, want)
			}
		}
		if _, err := reader.ReadFrame(); err != io.EOF {
			t.Errorf("chunk %d: expected io.EOF, got %v", chunk, err)
		}
	}
}

func TestFrameReaderEOF(t *testing.T) {
	reader := NewFrameReader(bytes.NewReader(nil))
	if _, err := reader.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFrameReaderTruncated(t *testing.T) {
	reader := NewFrameReader(bytes.NewReader([]byte{10, 'a', 'b'}))
	_, err := reader.ReadFrame()
	if !errors.Is(err, ErrFrameTruncated) {
		t.Errorf("expected ErrFrameTruncated, got %v", err)
	}
}

// dataWithEOFReader returns all data together with io.EOF.
type dataWithEOFReader struct {
	data []byte
	done bool
}

func (r *dataWithEOFReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	r.done = true
	return copy(p, r.data), io.EOF
}

func TestFrameReaderDataWithEOF(t *testing.T) {
	frame, _ := Encode([]byte("red-on"))
	reader := NewFrameReader(&dataWithEOFReader{data: frame})

	got, err := reader.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if string(got) != "red-on" {
		t.Errorf("got %q, want red-on", got)
	}
	if _, err := reader.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

type readWriter struct {
	io.Reader
	io.Writer
}

func TestFramerBidirectional(t *testing.T) {
	toServer := new(bytes.Buffer)
	toClient := new(bytes.Buffer)

	client := NewFramer(&readWriter{Reader: toClient, Writer: toServer})
	server := NewFramer(&readWriter{Reader: toServer, Writer: toClient})

	if err := client.WriteFrame([]byte("green-on")); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	got, err := server.ReadFrame()
	if err != nil || string(got) != "green-on" {
		t.Fatalf("server read = %q, %v", got, err)
	}

	if err := server.WriteFrame([]byte("acknowledge-")); err != nil {
		t.Fatalf("server write failed: %v", err)
	}
	got, err = client.ReadFrame()
	if err != nil || string(got) != "acknowledge-" {
		t.Fatalf("client read = %q, %v", got, err)
	}
}

type capturingLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (l *capturingLogger) Log(event log.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *capturingLogger) Events() []log.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]log.Event(nil), l.events...)
}

func TestFramerLogsWithConnectionID(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := &capturingLogger{}

	framer := NewFramer(buf)
	framer.SetLogger(logger, "conn-1")

	if err := framer.WriteFrame([]byte("blue-on")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	events := logger.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Direction != log.DirectionOut || events[1].Direction != log.DirectionIn {
		t.Errorf("directions = %v, %v", events[0].Direction, events[1].Direction)
	}
	for _, ev := range events {
		if ev.ConnectionID != "conn-1" {
			t.Errorf("ConnectionID = %q, want conn-1", ev.ConnectionID)
		}
		if ev.Frame == nil || ev.Frame.Size != FrameSize(len("blue-on")) {
			t.Errorf("unexpected frame event %+v", ev.Frame)
		}
	}
}

func TestFramerNoLoggerNoPanic(t *testing.T) {
	buf := new(bytes.Buffer)
	framer := NewFramer(buf)
	framer.SetLogger(nil, "")

	if err := framer.WriteFrame([]byte("x-1")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
}

func BenchmarkFrameRead(b *testing.B) {
	frame, _ := Encode([]byte("light-49"))
	stream := bytes.Repeat(frame, b.N)
	reader := NewFrameReader(bytes.NewReader(stream))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := reader.ReadFrame(); err != nil {
			b.Fatal(err)
		}
	}
}
