// Package log provides structured protocol logging for the relay.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (transport, session, device).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/relay/server.rlog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Transport: Raw frame bytes (FrameEvent)
//   - Session: Decoded commands (CommandEvent) and handler state (StateChangeEvent)
//   - Device: Dispatch entries written to or dropped before the serial device (DispatchEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Log files use CBOR encoding with .rlog extension. The relay-log CLI tool
// provides viewing, statistics and export.
package log
