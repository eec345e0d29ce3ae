package http1

import (
	"errors"
	"strings"
	"testing"
)

func TestParseRequest_Simple(t *testing.T) {
	t.Parallel()

	raw := "GET /hello?a=1&b=2 HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\n"
	req, consumed, err := ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	if req == nil {
		t.Fatal("ParseRequest() returned nil for complete input")
	}
	if consumed != len(raw) {
		t.Errorf("consumed = %d, want %d", consumed, len(raw))
	}
	if req.Method != "GET" {
		t.Errorf("Method = %q, want GET", req.Method)
	}
	if req.Path != "/hello" {
		t.Errorf("Path = %q, want /hello", req.Path)
	}
	if string(req.Query) != "a=1&b=2" {
		t.Errorf("Query = %q, want a=1&b=2", req.Query)
	}
	if req.Version != "1.1" {
		t.Errorf("Version = %q, want 1.1", req.Version)
	}
	if !req.KeepAlive {
		t.Error("HTTP/1.1 request should default to keep-alive")
	}
	if req.ContentLength != -1 {
		t.Errorf("ContentLength = %d, want -1 for absent header", req.ContentLength)
	}
	if host, _ := req.Headers.Get("host"); host != "example.com" {
		t.Errorf("host header = %q, want example.com", host)
	}
}

// Feeding the parser one extra byte at a time must produce the identical
// result as parsing the complete head at once, with no error on any
// intermediate prefix.
func TestParseRequest_FragmentationInvariance(t *testing.T) {
	t.Parallel()

	raw := "POST /submit HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\nCookie: a=1\r\nCookie: b=2\r\n\r\n"
	for i := 0; i < len(raw); i++ {
		req, consumed, err := ParseRequest([]byte(raw[:i]))
		if err != nil {
			t.Fatalf("prefix of %d bytes: unexpected error %v", i, err)
		}
		if req != nil || consumed != 0 {
			t.Fatalf("prefix of %d bytes: parser returned a request before the head was complete", i)
		}
	}

	req, consumed, err := ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("full head: %v", err)
	}
	if consumed != len(raw) {
		t.Errorf("consumed = %d, want %d", consumed, len(raw))
	}
	if req.ContentLength != 5 {
		t.Errorf("ContentLength = %d, want 5", req.ContentLength)
	}
}

func TestParseRequest_CookieFolding(t *testing.T) {
	t.Parallel()

	raw := "GET / HTTP/1.1\r\nCookie: a=1\r\nX-Mid: yes\r\nCookie: b=2\r\nCookie: c=3\r\n\r\n"
	req, _, err := ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}

	var cookies []string
	for _, h := range req.Headers {
		if h.Name == "cookie" {
			cookies = append(cookies, h.Value)
		}
	}
	if len(cookies) != 1 {
		t.Fatalf("got %d cookie headers, want 1 folded entry", len(cookies))
	}
	if cookies[0] != "a=1; b=2; c=3" {
		t.Errorf("folded cookie = %q, want %q", cookies[0], "a=1; b=2; c=3")
	}
	// Folded entry stays at the position of the first Cookie line.
	if req.Headers[0].Name != "cookie" {
		t.Errorf("first header = %q, want cookie", req.Headers[0].Name)
	}
}

func TestParseRequest_PercentDecoding(t *testing.T) {
	t.Parallel()

	req, _, err := ParseRequest([]byte("GET /a%20b/caf%C3%A9 HTTP/1.1\r\n\r\n"))
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	if req.Path != "/a b/café" {
		t.Errorf("Path = %q, want %q", req.Path, "/a b/café")
	}
	if string(req.RawPath) != "/a%20b/caf%C3%A9" {
		t.Errorf("RawPath = %q, want original encoded bytes", req.RawPath)
	}
}

func TestParseRequest_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{"bad request line", "GET /\r\n\r\n"},
		{"unsupported protocol", "GET / HTTP/2.0\r\n\r\n"},
		{"invalid method", "G@T / HTTP/1.1\r\n\r\n"},
		{"header without colon", "GET / HTTP/1.1\r\nbroken\r\n\r\n"},
		{"invalid header name", "GET / HTTP/1.1\r\nbad name: x\r\n\r\n"},
		{"obsolete folding", "GET / HTTP/1.1\r\na: b\r\n c\r\n\r\n"},
		{"negative content-length", "GET / HTTP/1.1\r\nContent-Length: -1\r\n\r\n"},
		{"non-numeric content-length", "GET / HTTP/1.1\r\nContent-Length: abc\r\n\r\n"},
		{"length with chunked", "GET / HTTP/1.1\r\nTransfer-Encoding: chunked\r\nContent-Length: 5\r\n\r\n"},
		{"unknown transfer-encoding", "GET / HTTP/1.1\r\nTransfer-Encoding: gzip\r\n\r\n"},
		{"bad percent encoding", "GET /%zz HTTP/1.1\r\n\r\n"},
		{"non-utf8 path", "GET /%ff%fe HTTP/1.1\r\n\r\n"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := ParseRequest([]byte(tt.raw))
			var merr *MalformedRequestError
			if !errors.As(err, &merr) {
				t.Fatalf("ParseRequest(%q) error = %v, want *MalformedRequestError", tt.raw, err)
			}
		})
	}
}

func TestParseRequest_KeepAliveDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want bool
	}{
		{"1.1 default", "GET / HTTP/1.1\r\n\r\n", true},
		{"1.1 close", "GET / HTTP/1.1\r\nConnection: close\r\n\r\n", false},
		{"1.0 default", "GET / HTTP/1.0\r\n\r\n", false},
		{"1.0 keep-alive", "GET / HTTP/1.0\r\nConnection: keep-alive\r\n\r\n", true},
		{"1.1 list with close", "GET / HTTP/1.1\r\nConnection: foo, Close\r\n\r\n", false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req, _, err := ParseRequest([]byte(tt.raw))
			if err != nil {
				t.Fatalf("ParseRequest() error: %v", err)
			}
			if req.KeepAlive != tt.want {
				t.Errorf("KeepAlive = %v, want %v", req.KeepAlive, tt.want)
			}
		})
	}
}

func TestParseRequest_Classification(t *testing.T) {
	t.Parallel()

	ws := "GET /ws HTTP/1.1\r\nUpgrade: websocket\r\nConnection: keep-alive, Upgrade\r\nSec-WebSocket-Protocol: chat, superchat\r\n\r\n"
	req, _, err := ParseRequest([]byte(ws))
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	if !req.IsWebSocketUpgrade() {
		t.Error("IsWebSocketUpgrade() = false, want true")
	}
	if got := req.Subprotocols(); len(got) != 2 || got[0] != "chat" || got[1] != "superchat" {
		t.Errorf("Subprotocols() = %v, want [chat superchat]", got)
	}

	sse := "GET /events HTTP/1.1\r\nAccept: text/html, text/event-stream;q=0.9\r\n\r\n"
	req, _, err = ParseRequest([]byte(sse))
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	if !req.WantsEventStream() {
		t.Error("WantsEventStream() = false, want true")
	}

	plain := "GET / HTTP/1.1\r\nAccept: */*\r\n\r\n"
	req, _, err = ParseRequest([]byte(plain))
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	if req.IsWebSocketUpgrade() || req.WantsEventStream() {
		t.Error("plain request misclassified")
	}
}

func TestParseRequest_ExpectContinue(t *testing.T) {
	t.Parallel()

	raw := "PUT /u HTTP/1.1\r\nContent-Length: 10\r\nExpect: 100-continue\r\n\r\n"
	req, _, err := ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	if !req.ExpectContinue {
		t.Error("ExpectContinue = false, want true")
	}
	if !req.HasBody() {
		t.Error("HasBody() = false, want true")
	}
}

func TestParseRequest_PipelinedRemainder(t *testing.T) {
	t.Parallel()

	first := "GET /a HTTP/1.1\r\n\r\n"
	second := "GET /b HTTP/1.1\r\n\r\n"
	buf := []byte(first + second)

	req, consumed, err := ParseRequest(buf)
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	if req.Path != "/a" || consumed != len(first) {
		t.Fatalf("first parse: path=%q consumed=%d", req.Path, consumed)
	}

	req, consumed, err = ParseRequest(buf[consumed:])
	if err != nil {
		t.Fatalf("second ParseRequest() error: %v", err)
	}
	if req.Path != "/b" || consumed != len(second) {
		t.Errorf("second parse: path=%q consumed=%d", req.Path, consumed)
	}
}

func TestParseRequest_LowercasesNames(t *testing.T) {
	t.Parallel()

	raw := "GET / HTTP/1.1\r\nX-Custom-HEADER: v\r\nCONTENT-TYPE: text/plain\r\n\r\n"
	req, _, err := ParseRequest([]byte(raw))
	if err != nil {
		t.Fatalf("ParseRequest() error: %v", err)
	}
	for _, h := range req.Headers {
		if h.Name != strings.ToLower(h.Name) {
			t.Errorf("header name %q is not lowercase", h.Name)
		}
	}
	if ct, _ := req.Headers.Get("content-type"); ct != "text/plain" {
		t.Errorf("content-type = %q, want text/plain", ct)
	}
}

func TestHeaderListContains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		token string
		want  bool
	}{
		{"close", "close", true},
		{"Close", "close", true},
		{"keep-alive, Upgrade", "upgrade", true},
		{" close , foo", "close", true},
		{"closed", "close", false},
		{"", "close", false},
	}
	for _, tt := range tests {
		if got := HeaderListContains(tt.value, tt.token); got != tt.want {
			t.Errorf("HeaderListContains(%q, %q) = %v, want %v", tt.value, tt.token, got, tt.want)
		}
	}
}
