// Package logging builds the operational *slog.Logger used by the relay
// commands, rendered by zerolog.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New returns a logger writing to w at the given level ("debug", "info",
// "warn", "error") in console or JSON format.
func New(level, format string, w io.Writer) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	var out io.Writer
	switch format {
	case "", FormatConsole:
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case FormatJSON:
		out = w
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}

	// Timestamps come from each slog.Record, see Handle.
	zl := zerolog.New(out)
	return slog.New(NewHandler(zl, lvl)), nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Handler is a slog.Handler that emits records through zerolog.
type Handler struct {
	logger zerolog.Logger
	level  slog.Leveler
	prefix string
}

// NewHandler wraps a zerolog.Logger.
func NewHandler(logger zerolog.Logger, level slog.Leveler) *Handler {
	return &Handler{logger: logger, level: level}
}

// Enabled implements slog.Handler.
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	event := h.logger.WithLevel(zerologLevel(r.Level))
	if !r.Time.IsZero() {
		event = event.Time(zerolog.TimestampFieldName, r.Time)
	}
	r.Attrs(func(a slog.Attr) bool {
		event = addAttr(event, h.prefix, a)
		return true
	})
	event.Msg(r.Message)
	return nil
}

// WithAttrs implements slog.Handler.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	ctx := h.logger.With()
	for _, a := range attrs {
		ctx = addContextAttr(ctx, h.prefix, a)
	}
	return &Handler{logger: ctx.Logger(), level: h.level, prefix: h.prefix}
}

// WithGroup implements slog.Handler. Groups become dotted key prefixes.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{logger: h.logger, level: h.level, prefix: h.prefix + name + "."}
}

func zerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l >= slog.LevelError:
		return zerolog.ErrorLevel
	case l >= slog.LevelWarn:
		return zerolog.WarnLevel
	case l >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}

func addAttr(event *zerolog.Event, prefix string, a slog.Attr) *zerolog.Event {
	v := a.Value.Resolve()
	key := prefix + a.Key

	switch v.Kind() {
	case slog.KindGroup:
		for _, ga := range v.Group() {
			event = addAttr(event, key+".", ga)
		}
		return event
	case slog.KindString:
		return event.Str(key, v.String())
	case slog.KindInt64:
		return event.Int64(key, v.Int64())
	case slog.KindUint64:
		return event.Uint64(key, v.Uint64())
	case slog.KindFloat64:
		return event.Float64(key, v.Float64())
	case slog.KindBool:
		return event.Bool(key, v.Bool())
	case slog.KindDuration:
		return event.Dur(key, v.Duration())
	case slog.KindTime:
		return event.Time(key, v.Time())
	}

	if err, ok := v.Any().(error); ok {
		return event.AnErr(key, err)
	}
	return event.Interface(key, v.Any())
}

func addContextAttr(ctx zerolog.Context, prefix string, a slog.Attr) zerolog.Context {
	v := a.Value.Resolve()
	key := prefix + a.Key

	switch v.Kind() {
	case slog.KindGroup:
		for _, ga := range v.Group() {
			ctx = addContextAttr(ctx, key+".", ga)
		}
		return ctx
	case slog.KindString:
		return ctx.Str(key, v.String())
	case slog.KindInt64:
		return ctx.Int64(key, v.Int64())
	case slog.KindBool:
		return ctx.Bool(key, v.Bool())
	case slog.KindDuration:
		return ctx.Dur(key, v.Duration())
	}

	if err, ok := v.Any().(error); ok {
		return ctx.AnErr(key, err)
	}
	return ctx.Interface(key, v.Any())
}
