package http1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gatewire/gatewire/pkg/gateway"
)

// serverToken identifies the server in the Server response header when
// the handler did not supply one.
const serverToken = "gatewire"

// AppendResponseStart serializes a status line and header block onto dst
// and returns the extended slice. A Date header in RFC 7231 format is
// always added when absent, as is a Server header. When chunked is set,
// Transfer-Encoding: chunked is emitted before the caller-supplied
// headers, which are written verbatim (names as given, already
// lowercased by the contract). The block is terminated by a blank line.
func AppendResponseStart(dst []byte, status int, headers gateway.Headers, chunked bool) []byte {
	dst = append(dst, "HTTP/1.1 "...)
	dst = strconv.AppendInt(dst, int64(status), 10)
	dst = append(dst, ' ')
	reason := http.StatusText(status)
	if reason == "" {
		reason = "Unknown"
	}
	dst = append(dst, reason...)
	dst = append(dst, '\r', '\n')

	if !headers.Has("date") {
		dst = append(dst, "date: "...)
		dst = time.Now().UTC().AppendFormat(dst, http.TimeFormat)
		dst = append(dst, '\r', '\n')
	}
	if !headers.Has("server") {
		dst = append(dst, "server: "...)
		dst = append(dst, serverToken...)
		dst = append(dst, '\r', '\n')
	}
	if chunked {
		dst = append(dst, "transfer-encoding: chunked\r\n"...)
	}
	for _, h := range headers {
		dst = append(dst, h.Name...)
		dst = append(dst, ':', ' ')
		dst = append(dst, h.Value...)
		dst = append(dst, '\r', '\n')
	}
	return append(dst, '\r', '\n')
}

// AppendBody serializes one body chunk. With chunked framing the data is
// hex-length-prefixed, and final adds the trailing zero-chunk terminator;
// without, the bytes are emitted raw.
func AppendBody(dst, chunk []byte, final, chunked bool) []byte {
	if !chunked {
		return append(dst, chunk...)
	}
	if len(chunk) > 0 {
		dst = strconv.AppendUint(dst, uint64(len(chunk)), 16)
		dst = append(dst, '\r', '\n')
		dst = append(dst, chunk...)
		dst = append(dst, '\r', '\n')
	}
	if final {
		dst = append(dst, '0', '\r', '\n', '\r', '\n')
	}
	return dst
}

// Continue100 is the interim response for Expect: 100-continue requests.
var Continue100 = []byte("HTTP/1.1 100 Continue\r\n\r\n")

// AppendPlainTextResponse serializes a complete minimal text/plain
// response. The connection machine uses it for locally-generated errors
// (400 on malformed input, 500 on handler failure before start).
func AppendPlainTextResponse(dst []byte, status int, body string) []byte {
	headers := gateway.Headers{
		{Name: "content-type", Value: "text/plain; charset=utf-8"},
		{Name: "content-length", Value: strconv.Itoa(len(body))},
		{Name: "connection", Value: "close"},
	}
	dst = AppendResponseStart(dst, status, headers, false)
	return append(dst, body...)
}
