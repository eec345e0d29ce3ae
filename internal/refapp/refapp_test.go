package refapp

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gatewire/gatewire/pkg/gateway"
)

// harness feeds scripted inbound events to the handler and records what it
// sends.
type harness struct {
	inbound []gateway.Event
	sent    []gateway.Event
}

func (h *harness) receive(ctx context.Context) (gateway.Event, error) {
	if len(h.inbound) == 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	ev := h.inbound[0]
	h.inbound = h.inbound[1:]
	return ev, nil
}

func (h *harness) send(ctx context.Context, ev gateway.Event) error {
	h.sent = append(h.sent, ev)
	return nil
}

func httpScope(method, path string, headers gateway.Headers, state gateway.State) gateway.HTTPScope {
	return gateway.HTTPScope{
		HTTPVersion: "1.1",
		Method:      method,
		Scheme:      "http",
		Path:        path,
		Headers:     headers,
		State:       state,
	}
}

func TestApp_Echo(t *testing.T) {
	t.Parallel()

	app := New()
	h := &harness{inbound: []gateway.Event{
		gateway.HTTPRequest{Body: []byte("part one "), More: true},
		gateway.HTTPRequest{Body: []byte("part two")},
	}}
	scope := httpScope("POST", "/echo", gateway.Headers{{Name: "content-type", Value: "text/custom"}}, nil)

	if err := app.Serve(context.Background(), scope, h.receive, h.send); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	if len(h.sent) != 2 {
		t.Fatalf("sent %d events, want start+body", len(h.sent))
	}
	start, ok := h.sent[0].(gateway.HTTPResponseStart)
	if !ok || start.Status != 200 {
		t.Fatalf("first event = %+v, want 200 start", h.sent[0])
	}
	if ct, _ := start.Headers.Get("content-type"); ct != "text/custom" {
		t.Errorf("content-type = %q, want request's type echoed", ct)
	}
	body := h.sent[1].(gateway.HTTPResponseBody)
	if string(body.Body) != "part one part two" {
		t.Errorf("body = %q, want concatenated request body", body.Body)
	}
}

func TestApp_Uptime(t *testing.T) {
	t.Parallel()

	app := New()
	state := gateway.State{"started_at": time.Now().Add(-time.Minute)}
	h := &harness{}
	scope := httpScope("GET", "/uptime", nil, state)

	if err := app.Serve(context.Background(), scope, h.receive, h.send); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	start := h.sent[0].(gateway.HTTPResponseStart)
	if start.Status != 200 {
		t.Errorf("status = %d, want 200", start.Status)
	}
}

func TestApp_UptimeWithoutState(t *testing.T) {
	t.Parallel()

	app := New()
	h := &harness{}
	scope := httpScope("GET", "/uptime", nil, gateway.State{})

	if err := app.Serve(context.Background(), scope, h.receive, h.send); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	if start := h.sent[0].(gateway.HTTPResponseStart); start.Status != 500 {
		t.Errorf("status = %d, want 500 when startup state is missing", start.Status)
	}
}

func TestApp_NotFound(t *testing.T) {
	t.Parallel()

	app := New()
	h := &harness{}
	if err := app.Serve(context.Background(), httpScope("GET", "/nope", nil, nil), h.receive, h.send); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	if start := h.sent[0].(gateway.HTTPResponseStart); start.Status != 404 {
		t.Errorf("status = %d, want 404", start.Status)
	}
}

func TestApp_Lifespan(t *testing.T) {
	t.Parallel()

	app := New()
	state := gateway.State{}
	h := &harness{inbound: []gateway.Event{
		gateway.LifespanStartup{},
		gateway.LifespanShutdown{},
	}}

	if err := app.Serve(context.Background(), gateway.LifespanScope{State: state}, h.receive, h.send); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	if _, ok := state["started_at"].(time.Time); !ok {
		t.Error("startup did not record started_at in shared state")
	}
	if len(h.sent) != 2 {
		t.Fatalf("sent %d events, want startup.complete + shutdown.complete", len(h.sent))
	}
	if h.sent[0].EventType() != "lifespan.startup.complete" {
		t.Errorf("first ack = %q", h.sent[0].EventType())
	}
	if h.sent[1].EventType() != "lifespan.shutdown.complete" {
		t.Errorf("second ack = %q", h.sent[1].EventType())
	}
}

func TestApp_StaticRange(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i)
	}
	if err := os.WriteFile(filepath.Join(dir, "blob.bin"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	app := New(WithStaticDir(dir))
	h := &harness{}
	scope := httpScope("GET", "/static/blob.bin", gateway.Headers{{Name: "range", Value: "bytes=100-599"}}, nil)

	if err := app.Serve(context.Background(), scope, h.receive, h.send); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	start := h.sent[0].(gateway.HTTPResponseStart)
	if start.Status != 206 {
		t.Fatalf("status = %d, want 206", start.Status)
	}
	if cr, _ := start.Headers.Get("content-range"); cr != "bytes 100-599/1000" {
		t.Errorf("content-range = %q, want bytes 100-599/1000", cr)
	}
	body := h.sent[1].(gateway.HTTPResponseBody)
	if body.Offset != 100 || body.Length != 500 {
		t.Errorf("file window = offset %d length %d, want 100/500", body.Offset, body.Length)
	}
	if body.Path == "" {
		t.Error("body event should carry the file path for server-side streaming")
	}
}

func TestApp_StaticTraversalRejected(t *testing.T) {
	t.Parallel()

	app := New(WithStaticDir(t.TempDir()))
	h := &harness{}
	scope := httpScope("GET", "/static/../secret", nil, nil)

	if err := app.Serve(context.Background(), scope, h.receive, h.send); err != nil {
		t.Fatalf("Serve() error: %v", err)
	}
	start := h.sent[0].(gateway.HTTPResponseStart)
	if start.Status != 400 && start.Status != 404 {
		t.Errorf("status = %d, want rejection", start.Status)
	}
}

func TestResolveRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		header     string
		size       int64
		wantOff    int64
		wantLen    int64
		wantStatus int
		wantOK     bool
	}{
		{"no header", "", 1000, 0, 1000, 200, true},
		{"closed range", "bytes=100-599", 1000, 100, 500, 206, true},
		{"open end", "bytes=900-", 1000, 900, 100, 206, true},
		{"suffix", "bytes=-100", 1000, 900, 100, 206, true},
		{"end clamped", "bytes=900-5000", 1000, 900, 100, 206, true},
		{"suffix larger than file", "bytes=-5000", 1000, 0, 1000, 206, true},
		{"start past end", "bytes=1000-", 1000, 0, 0, 0, false},
		{"inverted", "bytes=500-100", 1000, 0, 0, 0, false},
		{"multipart falls back", "bytes=0-1,5-6", 1000, 0, 1000, 200, true},
		{"non-bytes unit falls back", "items=0-5", 1000, 0, 1000, 200, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var headers gateway.Headers
			if tt.header != "" {
				headers = gateway.Headers{{Name: "range", Value: tt.header}}
			}
			off, length, status, ok := resolveRange(headers, tt.size)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if off != tt.wantOff || length != tt.wantLen || status != tt.wantStatus {
				t.Errorf("got offset=%d length=%d status=%d, want %d/%d/%d",
					off, length, status, tt.wantOff, tt.wantLen, tt.wantStatus)
			}
		})
	}
}
