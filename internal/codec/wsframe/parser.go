package wsframe

import "encoding/binary"

// DefaultMaxPayload bounds a single frame's payload when the caller does
// not configure a limit.
const DefaultMaxPayload = 16 << 20

// ParseFrame parses one frame from buf, unmasking the payload when a mask
// key is present. Incomplete input yields (nil, 0, nil) so the caller can
// accumulate more bytes and retry. requireMask enforces the server-side
// rule that every client frame must be masked. maxPayload bounds the
// declared payload length (0 means DefaultMaxPayload); violations and any
// other invalid framing yield a *FramingError.
func ParseFrame(buf []byte, requireMask bool, maxPayload int64) (*Frame, int, error) {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	if len(buf) < 2 {
		return nil, 0, nil
	}

	b0, b1 := buf[0], buf[1]
	fin := b0&0x80 != 0
	if b0&0x70 != 0 {
		return nil, 0, framingErr(CloseProtocolError, "reserved bits set without negotiated extension")
	}
	opcode := b0 & 0x0F
	switch opcode {
	case OpContinuation, OpText, OpBinary, OpClose, OpPing, OpPong:
	default:
		return nil, 0, framingErr(CloseProtocolError, "reserved opcode %#x", opcode)
	}

	masked := b1&0x80 != 0
	if requireMask && !masked {
		return nil, 0, framingErr(CloseProtocolError, "client frame not masked")
	}

	length := uint64(b1 & 0x7F)
	offset := 2
	switch length {
	case 126:
		if len(buf) < offset+2 {
			return nil, 0, nil
		}
		length = uint64(binary.BigEndian.Uint16(buf[offset:]))
		offset += 2
	case 127:
		if len(buf) < offset+8 {
			return nil, 0, nil
		}
		length = binary.BigEndian.Uint64(buf[offset:])
		offset += 8
		if length&(1<<63) != 0 {
			return nil, 0, framingErr(CloseProtocolError, "payload length high bit set")
		}
	}

	if opcode&0x8 != 0 {
		// Control frames must not be fragmented and carry at most 125 bytes.
		if !fin {
			return nil, 0, framingErr(CloseProtocolError, "fragmented control frame")
		}
		if length > 125 {
			return nil, 0, framingErr(CloseProtocolError, "control frame payload %d > 125", length)
		}
	}
	if length > uint64(maxPayload) {
		return nil, 0, framingErr(CloseMessageTooLarge, "payload %d exceeds limit %d", length, maxPayload)
	}

	var maskKey [4]byte
	if masked {
		if len(buf) < offset+4 {
			return nil, 0, nil
		}
		copy(maskKey[:], buf[offset:])
		offset += 4
	}

	total := offset + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}
	payload := append([]byte(nil), buf[offset:total]...)
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}

	return &Frame{Fin: fin, Opcode: opcode, Masked: masked, Payload: payload}, total, nil
}

// DecodeClose extracts the close code and reason from a close frame
// payload. An empty payload means no status was sent (code 1005); a
// one-byte payload is a protocol error.
func DecodeClose(payload []byte) (code int, reason string, err error) {
	switch {
	case len(payload) == 0:
		return CloseNoStatus, "", nil
	case len(payload) == 1:
		return 0, "", framingErr(CloseProtocolError, "close payload of one byte")
	default:
		return int(binary.BigEndian.Uint16(payload)), string(payload[2:]), nil
	}
}
