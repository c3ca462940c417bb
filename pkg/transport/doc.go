// Package transport provides the relay transport layer.
//
// The transport layer handles:
//   - TLS connections (1.2 minimum, optional client certificates)
//   - One-byte length-prefixed framing
//   - Certificate hot reload
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│  action-value command (UTF-8)  │
//	├────────────────────────────────┤
//	│   Length-Prefix Framing (1B)   │
//	├────────────────────────────────┤
//	│         TLS 1.2+               │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Framing
//
// Every frame is a single length byte followed by that many payload
// bytes, so a payload is at most 255 bytes. Frames are independent of
// TCP segment boundaries: one read may return several frames or part
// of one, and FrameReader reassembles them.
package transport
