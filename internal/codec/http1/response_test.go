package http1

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gatewire/gatewire/pkg/gateway"
)

func TestAppendResponseStart_AddsDateAndServer(t *testing.T) {
	t.Parallel()

	out := AppendResponseStart(nil, 200, gateway.Headers{
		{Name: "content-type", Value: "text/plain"},
	}, false)
	head := string(out)

	if !strings.HasPrefix(head, "HTTP/1.1 200 OK\r\n") {
		t.Errorf("status line missing: %q", head)
	}
	if !strings.Contains(head, "\r\nserver: gatewire\r\n") {
		t.Errorf("server header missing: %q", head)
	}
	if !strings.Contains(head, "\r\ncontent-type: text/plain\r\n") {
		t.Errorf("caller header missing: %q", head)
	}
	if !strings.HasSuffix(head, "\r\n\r\n") {
		t.Errorf("head not terminated by blank line: %q", head)
	}

	// The generated Date header must parse in RFC 7231 format.
	for _, line := range strings.Split(head, "\r\n") {
		if v, ok := strings.CutPrefix(line, "date: "); ok {
			if _, err := time.Parse(http.TimeFormat, v); err != nil {
				t.Errorf("date header %q does not parse: %v", v, err)
			}
			return
		}
	}
	t.Errorf("date header missing: %q", head)
}

func TestAppendResponseStart_RespectsCallerDateAndServer(t *testing.T) {
	t.Parallel()

	out := AppendResponseStart(nil, 204, gateway.Headers{
		{Name: "date", Value: "Mon, 01 Jan 2024 00:00:00 GMT"},
		{Name: "server", Value: "custom"},
	}, false)
	head := string(out)

	if strings.Count(head, "date:") != 1 {
		t.Errorf("duplicate date header: %q", head)
	}
	if strings.Count(head, "server:") != 1 || !strings.Contains(head, "server: custom\r\n") {
		t.Errorf("caller server header not preserved: %q", head)
	}
}

func TestAppendResponseStart_Chunked(t *testing.T) {
	t.Parallel()

	out := AppendResponseStart(nil, 200, nil, true)
	if !strings.Contains(string(out), "\r\ntransfer-encoding: chunked\r\n") {
		t.Errorf("transfer-encoding missing: %q", out)
	}
}

func TestAppendBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		chunk   string
		final   bool
		chunked bool
		want    string
	}{
		{"raw", "hello", false, false, "hello"},
		{"raw final", "hello", true, false, "hello"},
		{"chunked", "hello", false, true, "5\r\nhello\r\n"},
		{"chunked final", "hello", true, true, "5\r\nhello\r\n0\r\n\r\n"},
		{"chunked empty final", "", true, true, "0\r\n\r\n"},
		{"chunked empty non-final", "", false, true, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := AppendBody(nil, []byte(tt.chunk), tt.final, tt.chunked)
			if !bytes.Equal(got, []byte(tt.want)) {
				t.Errorf("AppendBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

// Chunked output must decode back through the chunk decoder to the
// original payload.
func TestAppendBody_RoundTrip(t *testing.T) {
	t.Parallel()

	var wire []byte
	wire = AppendBody(wire, []byte("part one "), false, true)
	wire = AppendBody(wire, []byte("part two"), true, true)

	body, done, err := decodeAll(t, string(wire), 1<<10)
	if err != nil {
		t.Fatalf("decoding chunked output: %v", err)
	}
	if !done {
		t.Error("terminator chunk not recognized")
	}
	if body != "part one part two" {
		t.Errorf("round-tripped body = %q", body)
	}
}

func TestAppendPlainTextResponse(t *testing.T) {
	t.Parallel()

	out := string(AppendPlainTextResponse(nil, 400, "bad request\n"))
	if !strings.HasPrefix(out, "HTTP/1.1 400 Bad Request\r\n") {
		t.Errorf("status line: %q", out)
	}
	if !strings.Contains(out, "content-length: 12\r\n") {
		t.Errorf("content-length missing: %q", out)
	}
	if !strings.Contains(out, "connection: close\r\n") {
		t.Errorf("connection: close missing: %q", out)
	}
	if !strings.HasSuffix(out, "\r\n\r\nbad request\n") {
		t.Errorf("body: %q", out)
	}
}
