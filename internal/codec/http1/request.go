// Package http1 implements the HTTP/1.1 wire codec: parsing raw request
// bytes into a structured request and serializing status lines, headers,
// and fixed-length or chunked bodies back to bytes. Every function is pure
// and stateless per call; the connection machine owns all buffering.
package http1

import (
	"bytes"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gatewire/gatewire/pkg/gateway"
)

// MalformedRequestError reports an unparseable request line or header
// block. The connection machine turns it into a 400 response and a
// connection close; it is never fatal to the process.
type MalformedRequestError struct {
	Reason string
}

func (e *MalformedRequestError) Error() string {
	return "http1: malformed request: " + e.Reason
}

func malformed(format string, args ...any) error {
	return &MalformedRequestError{Reason: fmt.Sprintf(format, args...)}
}

// Request is one parsed HTTP/1.1 request head.
type Request struct {
	Method  string
	Path    string // percent-decoded UTF-8
	RawPath []byte // original encoded path bytes
	Query   []byte // raw query string, no leading "?"
	Version string // "1.0" or "1.1"

	// Headers are in wire order with lowercased names; all Cookie lines
	// are folded into a single "; "-joined entry at the position of the
	// first one.
	Headers gateway.Headers

	// ContentLength is the declared body length, -1 when absent.
	ContentLength int64
	// Chunked is set when Transfer-Encoding: chunked framing applies.
	Chunked bool
	// KeepAlive reflects the Connection header against the version
	// default (keep-alive for 1.1, close for 1.0).
	KeepAlive bool
	// ExpectContinue is set for Expect: 100-continue requests.
	ExpectContinue bool
}

// HasBody reports whether the request carries a message body.
func (r *Request) HasBody() bool {
	return r.Chunked || r.ContentLength > 0
}

// IsWebSocketUpgrade reports whether the request asks for the
// HTTP-to-WebSocket handshake.
func (r *Request) IsWebSocketUpgrade() bool {
	up, _ := r.Headers.Get("upgrade")
	if !strings.EqualFold(up, "websocket") {
		return false
	}
	conn, _ := r.Headers.Get("connection")
	return HeaderListContains(conn, "upgrade")
}

// WantsEventStream reports whether the Accept header requests
// text/event-stream, which reclassifies the exchange as SSE.
func (r *Request) WantsEventStream() bool {
	accept, ok := r.Headers.Get("accept")
	if !ok {
		return false
	}
	for _, part := range strings.Split(accept, ",") {
		mt := strings.TrimSpace(part)
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = strings.TrimSpace(mt[:i])
		}
		if strings.EqualFold(mt, "text/event-stream") {
			return true
		}
	}
	return false
}

// Subprotocols parses the Sec-WebSocket-Protocol header into the
// client-offered subprotocol names, in order.
func (r *Request) Subprotocols() []string {
	v, ok := r.Headers.Get("sec-websocket-protocol")
	if !ok {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var crlfcrlf = []byte("\r\n\r\n")

// ParseRequest parses one request head from buf. It returns (nil, 0, nil)
// when buf does not yet hold a complete request line and header block so
// the caller can accumulate more bytes and retry; it never blocks and
// never errors for merely-incomplete input. Unparseable input yields a
// *MalformedRequestError.
func ParseRequest(buf []byte) (*Request, int, error) {
	end := bytes.Index(buf, crlfcrlf)
	if end < 0 {
		return nil, 0, nil
	}
	head := buf[:end]
	consumed := end + len(crlfcrlf)

	lineEnd := bytes.Index(head, []byte("\r\n"))
	if lineEnd < 0 {
		lineEnd = len(head)
	}
	req, err := parseRequestLine(head[:lineEnd])
	if err != nil {
		return nil, 0, err
	}

	rest := head[lineEnd:]
	if len(rest) >= 2 {
		rest = rest[2:]
	}
	if err := parseHeaders(req, rest); err != nil {
		return nil, 0, err
	}
	if err := parseFraming(req); err != nil {
		return nil, 0, err
	}
	return req, consumed, nil
}

// parseRequestLine decodes "METHOD SP request-target SP HTTP/x.y".
func parseRequestLine(line []byte) (*Request, error) {
	parts := bytes.Split(line, []byte(" "))
	if len(parts) != 3 {
		return nil, malformed("request line %q", line)
	}
	method, target, proto := parts[0], parts[1], parts[2]

	if len(method) == 0 || !isToken(method) {
		return nil, malformed("invalid method %q", method)
	}
	var version string
	switch string(proto) {
	case "HTTP/1.1":
		version = "1.1"
	case "HTTP/1.0":
		version = "1.0"
	default:
		return nil, malformed("unsupported protocol %q", proto)
	}
	if len(target) == 0 {
		return nil, malformed("empty request target")
	}

	rawPath := target
	var query []byte
	if i := bytes.IndexByte(target, '?'); i >= 0 {
		rawPath = target[:i]
		query = target[i+1:]
	}
	decoded, err := url.PathUnescape(string(rawPath))
	if err != nil {
		return nil, malformed("bad percent-encoding in path %q", rawPath)
	}
	if !utf8.ValidString(decoded) {
		return nil, malformed("path %q is not valid UTF-8", rawPath)
	}

	return &Request{
		Method:        string(method),
		Path:          decoded,
		RawPath:       append([]byte(nil), rawPath...),
		Query:         append([]byte(nil), query...),
		Version:       version,
		ContentLength: -1,
	}, nil
}

// parseHeaders decodes the header block, lowercasing names and folding
// repeated Cookie lines into one "; "-joined logical header.
func parseHeaders(req *Request, block []byte) error {
	cookieIdx := -1
	for len(block) > 0 {
		line := block
		if i := bytes.Index(block, []byte("\r\n")); i >= 0 {
			line = block[:i]
			block = block[i+2:]
		} else {
			block = nil
		}
		if len(line) == 0 {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			return malformed("obsolete header folding")
		}
		colon := bytes.IndexByte(line, ':')
		if colon <= 0 {
			return malformed("header line %q", line)
		}
		name := line[:colon]
		if !isToken(name) {
			return malformed("invalid header name %q", name)
		}
		value := string(bytes.TrimSpace(line[colon+1:]))
		lower := strings.ToLower(string(name))

		if lower == "cookie" {
			if cookieIdx >= 0 {
				req.Headers[cookieIdx].Value += "; " + value
				continue
			}
			cookieIdx = len(req.Headers)
		}
		req.Headers = append(req.Headers, gateway.Header{Name: lower, Value: value})
	}
	return nil
}

// parseFraming derives body framing and keep-alive from the headers.
func parseFraming(req *Request) error {
	if te, ok := req.Headers.Get("transfer-encoding"); ok {
		if !strings.EqualFold(strings.TrimSpace(te), "chunked") {
			return malformed("unsupported transfer-encoding %q", te)
		}
		req.Chunked = true
	}
	if cl, ok := req.Headers.Get("content-length"); ok {
		if req.Chunked {
			// RFC 7230 3.3.3: chunked wins, a conflicting length is suspect.
			return malformed("both content-length and transfer-encoding present")
		}
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return malformed("invalid content-length %q", cl)
		}
		req.ContentLength = n
	}

	req.KeepAlive = req.Version == "1.1"
	if conn, ok := req.Headers.Get("connection"); ok {
		if HeaderListContains(conn, "close") {
			req.KeepAlive = false
		} else if HeaderListContains(conn, "keep-alive") {
			req.KeepAlive = true
		}
	}

	if expect, ok := req.Headers.Get("expect"); ok {
		req.ExpectContinue = strings.EqualFold(strings.TrimSpace(expect), "100-continue")
	}
	return nil
}

// HeaderListContains reports whether a comma-separated header value
// contains the given token, case-insensitively.
func HeaderListContains(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// isToken reports whether b is a valid RFC 7230 token.
func isToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if !isTokenByte(c) {
			return false
		}
	}
	return true
}

func isTokenByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}
