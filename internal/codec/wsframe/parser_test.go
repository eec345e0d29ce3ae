package wsframe

import (
	"bytes"
	"errors"
	"testing"
)

// maskFrame applies the client-side mask to a serialized unmasked frame so
// tests can synthesize client-to-server traffic.
func maskFrame(t *testing.T, frame []byte, key [4]byte) []byte {
	t.Helper()
	if len(frame) < 2 {
		t.Fatal("frame too short to mask")
	}
	payloadLen := int(frame[1] & 0x7F)
	headerLen := 2
	switch payloadLen {
	case 126:
		headerLen += 2
	case 127:
		headerLen += 8
	}

	out := make([]byte, 0, len(frame)+4)
	out = append(out, frame[:headerLen]...)
	out[1] |= 0x80
	out = append(out, key[:]...)
	for i, b := range frame[headerLen:] {
		out = append(out, b^key[i%4])
	}
	return out
}

func TestParseFrame_MaskedText(t *testing.T) {
	t.Parallel()

	wire := maskFrame(t, AppendFrame(nil, true, OpText, []byte("hello")), [4]byte{0x12, 0x34, 0x56, 0x78})

	f, consumed, err := ParseFrame(wire, true, 0)
	if err != nil {
		t.Fatalf("ParseFrame() error: %v", err)
	}
	if consumed != len(wire) {
		t.Errorf("consumed = %d, want %d", consumed, len(wire))
	}
	if !f.Fin || f.Opcode != OpText || !f.Masked {
		t.Errorf("frame = %+v, want fin text masked", f)
	}
	if string(f.Payload) != "hello" {
		t.Errorf("payload = %q, want hello (unmasked)", f.Payload)
	}
}

func TestParseFrame_Incomplete(t *testing.T) {
	t.Parallel()

	wire := maskFrame(t, AppendFrame(nil, true, OpBinary, bytes.Repeat([]byte{0xAB}, 300)), [4]byte{1, 2, 3, 4})
	for i := 0; i < len(wire); i++ {
		f, consumed, err := ParseFrame(wire[:i], true, 0)
		if err != nil {
			t.Fatalf("prefix of %d bytes: unexpected error %v", i, err)
		}
		if f != nil || consumed != 0 {
			t.Fatalf("prefix of %d bytes: parser returned a frame early", i)
		}
	}
	f, _, err := ParseFrame(wire, true, 0)
	if err != nil {
		t.Fatalf("full frame: %v", err)
	}
	if len(f.Payload) != 300 {
		t.Errorf("payload length = %d, want 300 (extended 16-bit length)", len(f.Payload))
	}
}

func TestParseFrame_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		wire     []byte
		wantCode int
	}{
		{"reserved bits", []byte{0xC1, 0x80, 0, 0, 0, 0}, CloseProtocolError},
		{"reserved opcode", []byte{0x83, 0x80, 0, 0, 0, 0}, CloseProtocolError},
		{"unmasked client frame", AppendFrame(nil, true, OpText, []byte("x")), CloseProtocolError},
		{"fragmented control", []byte{0x09, 0x80, 0, 0, 0, 0}, CloseProtocolError},
		{"oversized control", []byte{0x88, 0xFE, 0x00, 0x7E}, CloseProtocolError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := ParseFrame(tt.wire, true, 0)
			var fe *FramingError
			if !errors.As(err, &fe) {
				t.Fatalf("ParseFrame() error = %v, want *FramingError", err)
			}
			if fe.Code != tt.wantCode {
				t.Errorf("close code = %d, want %d", fe.Code, tt.wantCode)
			}
		})
	}
}

func TestParseFrame_PayloadLimit(t *testing.T) {
	t.Parallel()

	wire := maskFrame(t, AppendFrame(nil, true, OpBinary, make([]byte, 200)), [4]byte{9, 9, 9, 9})
	_, _, err := ParseFrame(wire, true, 100)
	var fe *FramingError
	if !errors.As(err, &fe) {
		t.Fatalf("ParseFrame() error = %v, want *FramingError", err)
	}
	if fe.Code != CloseMessageTooLarge {
		t.Errorf("close code = %d, want %d", fe.Code, CloseMessageTooLarge)
	}
}

func TestDecodeClose(t *testing.T) {
	t.Parallel()

	code, reason, err := DecodeClose(nil)
	if err != nil || code != CloseNoStatus || reason != "" {
		t.Errorf("empty payload: code=%d reason=%q err=%v, want 1005", code, reason, err)
	}

	code, reason, err = DecodeClose([]byte{0x03, 0xE8, 'b', 'y', 'e'})
	if err != nil || code != 1000 || reason != "bye" {
		t.Errorf("payload: code=%d reason=%q err=%v, want 1000/bye", code, reason, err)
	}

	if _, _, err := DecodeClose([]byte{0x03}); err == nil {
		t.Error("one-byte close payload should be a protocol error")
	}
}

func TestAppendClose(t *testing.T) {
	t.Parallel()

	wire := AppendClose(nil, 1000, "done")
	f, _, err := ParseFrame(wire, false, 0)
	if err != nil {
		t.Fatalf("ParseFrame() error: %v", err)
	}
	if f.Opcode != OpClose || f.Masked {
		t.Errorf("frame = %+v, want unmasked close", f)
	}
	code, reason, err := DecodeClose(f.Payload)
	if err != nil || code != 1000 || reason != "done" {
		t.Errorf("round-tripped close: code=%d reason=%q err=%v", code, reason, err)
	}

	// 1005 never appears on the wire: the payload stays empty.
	wire = AppendClose(nil, CloseNoStatus, "ignored")
	f, _, err = ParseFrame(wire, false, 0)
	if err != nil {
		t.Fatalf("ParseFrame() error: %v", err)
	}
	if len(f.Payload) != 0 {
		t.Errorf("1005 close frame payload = %q, want empty", f.Payload)
	}
}

func TestAcceptKey(t *testing.T) {
	t.Parallel()

	// Worked example from RFC 6455 Section 1.3.
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("AcceptKey() = %q, want %q", got, want)
	}
}
