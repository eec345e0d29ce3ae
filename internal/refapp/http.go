package refapp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gatewire/gatewire/pkg/gateway"
)

// serveHTTP routes one HTTP exchange.
func (a *App) serveHTTP(ctx context.Context, scope gateway.HTTPScope, receive gateway.ReceiveFunc, send gateway.SendFunc) error {
	path := strings.TrimPrefix(scope.Path, scope.RootPath)

	switch {
	case path == "/":
		return a.handleIndex(ctx, scope, receive, send)
	case path == "/echo":
		return a.handleEcho(ctx, scope, receive, send)
	case path == "/uptime":
		return a.handleUptime(ctx, scope, receive, send)
	case strings.HasPrefix(path, "/static/") && a.staticDir != "":
		return a.handleStatic(ctx, scope, path, receive, send)
	default:
		return respondText(ctx, send, 404, "not found\n")
	}
}

// handleIndex describes the application.
func (a *App) handleIndex(ctx context.Context, scope gateway.HTTPScope, receive gateway.ReceiveFunc, send gateway.SendFunc) error {
	if scope.Method != "GET" && scope.Method != "HEAD" {
		return respondText(ctx, send, 405, "method not allowed\n")
	}
	body := "gatewire reference application\n" +
		"  GET  /            this page\n" +
		"  POST /echo        echo the request body\n" +
		"  GET  /uptime      time since startup\n" +
		"  GET  /static/...  static files\n" +
		"  GET  /events      server-sent events (Accept: text/event-stream)\n" +
		"  GET  /ws          websocket echo\n"
	return respondText(ctx, send, 200, body)
}

// handleEcho reads the full request body and sends it back verbatim,
// preserving the request's content type.
func (a *App) handleEcho(ctx context.Context, scope gateway.HTTPScope, receive gateway.ReceiveFunc, send gateway.SendFunc) error {
	if scope.Method != "POST" && scope.Method != "PUT" {
		return respondText(ctx, send, 405, "method not allowed\n")
	}

	body, err := readBody(ctx, receive)
	if err != nil {
		return err
	}

	contentType, ok := scope.Headers.Get("content-type")
	if !ok {
		contentType = "application/octet-stream"
	}
	if err := send(ctx, gateway.HTTPResponseStart{
		Status: 200,
		Headers: gateway.Headers{
			{Name: "content-type", Value: contentType},
		},
	}); err != nil {
		return err
	}
	return send(ctx, gateway.HTTPResponseBody{Body: body})
}

// handleUptime reads the start time stored in the shared state map during
// lifecycle startup.
func (a *App) handleUptime(ctx context.Context, scope gateway.HTTPScope, receive gateway.ReceiveFunc, send gateway.SendFunc) error {
	if scope.Method != "GET" && scope.Method != "HEAD" {
		return respondText(ctx, send, 405, "method not allowed\n")
	}
	startedAt, ok := scope.State["started_at"].(time.Time)
	if !ok {
		return respondText(ctx, send, 500, "startup state missing\n")
	}
	body := fmt.Sprintf("uptime: %s\n", time.Since(startedAt).Round(time.Millisecond))
	return respondText(ctx, send, 200, body)
}

// readBody drains the request body, honoring the More flag. A disconnect
// mid-body is surfaced as an error so the exchange is abandoned.
func readBody(ctx context.Context, receive gateway.ReceiveFunc) ([]byte, error) {
	var body []byte
	for {
		ev, err := receive(ctx)
		if err != nil {
			return nil, err
		}
		switch e := ev.(type) {
		case gateway.HTTPRequest:
			body = append(body, e.Body...)
			if !e.More {
				return body, nil
			}
		case gateway.HTTPDisconnect:
			return nil, fmt.Errorf("client disconnected while sending body")
		default:
			return nil, fmt.Errorf("unexpected event %q while reading body", ev.EventType())
		}
	}
}

// respondText sends a complete text/plain response in one start + body pair.
func respondText(ctx context.Context, send gateway.SendFunc, status int, body string) error {
	if err := send(ctx, gateway.HTTPResponseStart{
		Status: status,
		Headers: gateway.Headers{
			{Name: "content-type", Value: "text/plain; charset=utf-8"},
		},
	}); err != nil {
		return err
	}
	return send(ctx, gateway.HTTPResponseBody{Body: []byte(body)})
}
