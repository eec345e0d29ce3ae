// Package wsframe implements the WebSocket wire framing of RFC 6455:
// parsing a byte stream into discrete frames, unmasking client-to-server
// payloads, reassembling fragmented messages, and serializing unmasked
// server-to-client frames. Parsing is buffer-based and pure per call; the
// connection machine owns accumulation and retry.
package wsframe

import "fmt"

// Frame opcodes (RFC 6455 Section 5.2).
const (
	OpContinuation byte = 0x0
	OpText         byte = 0x1
	OpBinary       byte = 0x2
	OpClose        byte = 0x8
	OpPing         byte = 0x9
	OpPong         byte = 0xA
)

// Close codes used by the server core.
const (
	CloseNormal          = 1000
	CloseGoingAway       = 1001
	CloseProtocolError   = 1002
	CloseNoStatus        = 1005
	CloseInternalError   = 1011
	CloseMessageTooLarge = 1009
)

// FramingError reports an invalid frame: bad opcode, reserved bits,
// control-frame violations, mask violations, or an oversized payload. The
// connection machine answers it with a close frame (code 1002, or 1009
// for oversize) and terminates the connection.
type FramingError struct {
	Code   int // close code to send, 1002 unless oversize
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("wsframe: %s (close code %d)", e.Reason, e.Code)
}

func framingErr(code int, format string, args ...any) error {
	return &FramingError{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Frame is one parsed WebSocket frame with its payload already unmasked.
type Frame struct {
	Fin    bool
	Opcode byte
	// Masked records whether the wire frame carried a mask (required for
	// client-to-server frames, forbidden for server-to-client ones).
	Masked  bool
	Payload []byte
}

// IsControl reports whether the frame is a control frame (close, ping,
// pong).
func (f *Frame) IsControl() bool { return f.Opcode&0x8 != 0 }
