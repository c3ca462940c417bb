package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", FormatJSON, &buf)
	require.NoError(t, err)

	logger.Debug("hidden")
	logger.Info("session opened", "conn", "abc", "frames", 3, "idle", 2*time.Second)
	logger.Warn("read failed", "error", errors.New("boom"))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "info", lines[0]["level"])
	assert.Equal(t, "session opened", lines[0]["message"])
	assert.Equal(t, "abc", lines[0]["conn"])
	assert.EqualValues(t, 3, lines[0]["frames"])
	assert.Contains(t, lines[0], "time")

	assert.Equal(t, "warn", lines[1]["level"])
	assert.Equal(t, "boom", lines[1]["error"])
}

func TestWithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", FormatJSON, &buf)
	require.NoError(t, err)

	logger.With("component", "writer").WithGroup("entry").Debug("written", "seq", 7)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "debug", lines[0]["level"])
	assert.Equal(t, "writer", lines[0]["component"])
	assert.EqualValues(t, 7, lines[0]["entry.seq"])
}

func TestHandleUsesRecordTime(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(zerolog.New(&buf), slog.LevelInfo)

	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	r := slog.NewRecord(at, slog.LevelInfo, "written", 0)
	r.AddAttrs(slog.Int("seq", 1))
	require.NoError(t, h.Handle(context.Background(), r))

	// A record without a time carries no time field.
	require.NoError(t, h.Handle(context.Background(), slog.NewRecord(time.Time{}, slog.LevelInfo, "bare", 0)))

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, at.Format(zerolog.TimeFieldFormat), lines[0]["time"])
	assert.NotContains(t, lines[1], "time")
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("", FormatConsole, &buf)
	require.NoError(t, err)

	logger.Info("relay started", "addr", ":8443")
	out := buf.String()
	assert.Contains(t, out, "relay started")
	assert.Contains(t, out, "addr=")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New("info", "xml", &bytes.Buffer{})
	assert.Error(t, err)
}
