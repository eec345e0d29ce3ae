package wsframe

import "encoding/binary"

// AppendFrame serializes one server-to-client frame onto dst and returns
// the extended slice. Server frames are never masked (RFC 6455 Section
// 5.1).
func AppendFrame(dst []byte, fin bool, opcode byte, payload []byte) []byte {
	b0 := opcode
	if fin {
		b0 |= 0x80
	}
	dst = append(dst, b0)

	n := len(payload)
	switch {
	case n <= 125:
		dst = append(dst, byte(n))
	case n <= 65535:
		dst = append(dst, 126)
		var ext [2]byte
		binary.BigEndian.PutUint16(ext[:], uint16(n))
		dst = append(dst, ext[:]...)
	default:
		dst = append(dst, 127)
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		dst = append(dst, ext[:]...)
	}
	return append(dst, payload...)
}

// AppendClose serializes a close frame carrying the given code and
// reason. Code 1005 means "no status": the payload is left empty per the
// protocol, since 1005 must never appear on the wire.
func AppendClose(dst []byte, code int, reason string) []byte {
	if code == CloseNoStatus {
		return AppendFrame(dst, true, OpClose, nil)
	}
	payload := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	payload = append(payload, reason...)
	return AppendFrame(dst, true, OpClose, payload)
}
