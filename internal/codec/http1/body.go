package http1

import (
	"bytes"
	"strconv"
)

// ChunkDecoder incrementally decodes a chunked message body. Like
// ParseRequest it is pure per call and never blocks: incomplete input
// yields (nil, 0, false, nil) so the caller can accumulate more bytes and
// retry. Chunk data is delivered as soon as it is buffered rather than
// once the whole chunk has arrived, so a single declared multi-gigabyte
// chunk costs the caller only its read-buffer size, never the chunk size.
//
// Next returns (data, consumed, done, err):
//   - data non-nil: one slice of chunk payload, not necessarily a whole
//     chunk;
//   - consumed: bytes of buf processed, which the caller must discard
//     before the next call (framing-only progress can consume bytes
//     without yielding data);
//   - done: the zero-length terminator chunk was consumed (trailers are
//     not supported and their presence is malformed input).
type ChunkDecoder struct {
	remaining int64 // payload bytes left in the current chunk
	needCRLF  bool  // the current chunk's trailing CRLF is still unread
}

func (d *ChunkDecoder) Next(buf []byte) (data []byte, consumed int, done bool, err error) {
	if d.needCRLF {
		if len(buf) < 2 {
			return nil, 0, false, nil
		}
		if buf[0] != '\r' || buf[1] != '\n' {
			return nil, 0, false, malformed("chunk data not terminated by CRLF")
		}
		d.needCRLF = false
		buf = buf[2:]
		consumed = 2
	}

	if d.remaining > 0 {
		if len(buf) == 0 {
			return nil, consumed, false, nil
		}
		take := d.remaining
		if int64(len(buf)) < take {
			take = int64(len(buf))
		}
		data = append([]byte(nil), buf[:take]...)
		d.remaining -= take
		if d.remaining == 0 {
			d.needCRLF = true
		}
		return data, consumed + int(take), false, nil
	}

	lineEnd := bytes.Index(buf, []byte("\r\n"))
	if lineEnd < 0 {
		return nil, consumed, false, nil
	}
	sizeLine := buf[:lineEnd]
	// Chunk extensions are tolerated and discarded.
	if i := bytes.IndexByte(sizeLine, ';'); i >= 0 {
		sizeLine = sizeLine[:i]
	}
	size, perr := strconv.ParseUint(string(bytes.TrimSpace(sizeLine)), 16, 63)
	if perr != nil {
		return nil, consumed, false, malformed("invalid chunk size %q", sizeLine)
	}

	headerLen := lineEnd + 2
	if size == 0 {
		// Terminator: "0\r\n\r\n" (no trailer support).
		if len(buf) < headerLen+2 {
			return nil, consumed, false, nil
		}
		if !bytes.HasPrefix(buf[headerLen:], []byte("\r\n")) {
			return nil, consumed, false, malformed("trailers are not supported")
		}
		return nil, consumed + headerLen + 2, true, nil
	}
	d.remaining = int64(size)
	return nil, consumed + headerLen, false, nil
}
