package wsframe

import "unicode/utf8"

// Message is one complete logical message, reassembled from its frames.
// Text reports whether the initial opcode was text; text payloads are
// validated as UTF-8 during assembly.
type Message struct {
	Text    bool
	Payload []byte
}

// Assembler reassembles fragmented data frames into complete messages.
// Control frames must be handled by the caller before Push; feeding one
// is a programming error surfaced as a FramingError.
type Assembler struct {
	// MaxMessageSize bounds the total reassembled payload (0 means
	// DefaultMaxPayload).
	MaxMessageSize int64

	text    bool
	partial []byte
	open    bool
}

// Push consumes one data frame. It returns a complete message when the
// frame finishes one, nil while a fragmented message is still being
// assembled, and a *FramingError on interleaving violations: a
// continuation frame without an open message, or a new data frame while a
// fragmented message is in progress.
func (a *Assembler) Push(f *Frame) (*Message, error) {
	limit := a.MaxMessageSize
	if limit <= 0 {
		limit = DefaultMaxPayload
	}

	switch f.Opcode {
	case OpText, OpBinary:
		if a.open {
			return nil, framingErr(CloseProtocolError, "data frame while fragmented message in progress")
		}
		if f.Fin {
			msg := &Message{Text: f.Opcode == OpText, Payload: f.Payload}
			return msg, a.validate(msg)
		}
		a.open = true
		a.text = f.Opcode == OpText
		a.partial = append(a.partial[:0], f.Payload...)
		return nil, nil

	case OpContinuation:
		if !a.open {
			return nil, framingErr(CloseProtocolError, "continuation frame without initial frame")
		}
		if int64(len(a.partial))+int64(len(f.Payload)) > limit {
			return nil, framingErr(CloseMessageTooLarge, "reassembled message exceeds limit %d", limit)
		}
		a.partial = append(a.partial, f.Payload...)
		if !f.Fin {
			return nil, nil
		}
		msg := &Message{Text: a.text, Payload: append([]byte(nil), a.partial...)}
		a.open = false
		a.partial = a.partial[:0]
		return msg, a.validate(msg)

	default:
		return nil, framingErr(CloseProtocolError, "control frame fed to assembler")
	}
}

func (a *Assembler) validate(msg *Message) error {
	if msg.Text && !utf8.Valid(msg.Payload) {
		return framingErr(CloseProtocolError, "text message is not valid UTF-8")
	}
	return nil
}
