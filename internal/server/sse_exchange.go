package server

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gatewire/gatewire/internal/codec/http1"
	"github.com/gatewire/gatewire/pkg/gateway"
)

// sseExchange drives one server-sent-events stream. The exchange begins
// life as an ordinary HTTP request; the connection machine reclassified
// it because the Accept header asked for text/event-stream. The stream
// binds the connection: when the handler returns, the connection closes.
type sseExchange struct {
	c   *conn
	req *http1.Request

	disconnect chan struct{}

	status     int
	started    bool
	chunkedOut bool
}

func (c *conn) serveSSE(ctx context.Context, req *http1.Request) {
	start := time.Now()
	logger := c.exchangeLogger("sse", req)

	// A request body on an SSE request is unusual but legal; consume it
	// so it cannot be misread as stream input.
	if req.HasBody() {
		if !newHTTPExchange(c, req).drainBody() {
			c.close()
			return
		}
	}

	ex := &sseExchange{c: c, req: req, disconnect: make(chan struct{})}
	scope := gateway.SSEScope{HTTPScope: c.httpScope(req)}

	exCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Watch for the client closing the stream. SSE clients send nothing
	// after the request head, so any read result other than data is a
	// disconnect; stray bytes are discarded. The watcher dies with the
	// connection: closing the socket when the handler returns unblocks
	// the read.
	go func() {
		defer close(ex.disconnect)
		buf := make([]byte, 256)
		for {
			if _, err := c.rwc.Read(buf); err != nil {
				return
			}
		}
	}()

	err := invokeHandler(exCtx, c.srv.handler, scope, ex.receive, ex.send)

	c.state = stateDraining
	statusLabel := "aborted"
	defer func() {
		c.srv.metrics.exchangeDone("sse", statusLabel, start)
	}()

	if err != nil {
		if !ex.started {
			if errors.Is(err, gateway.ErrUnsupportedScope) {
				c.srv.metrics.failure("unsupported")
				logger.Warn("handler does not support sse scope")
			} else {
				c.srv.metrics.failure("error_response")
				logHandlerError(logger, err)
			}
			c.writeErrorResponse(500, "Internal Server Error")
			statusLabel = "5xx"
			return
		}
		c.srv.metrics.failure("aborted")
		logHandlerError(logger, err)
		c.abort()
		return
	}

	if !ex.started {
		logger.Warn("handler completed without starting the stream")
		c.writeErrorResponse(500, "Internal Server Error")
		statusLabel = "5xx"
		return
	}

	// Clean end of stream.
	if ex.chunkedOut {
		_ = c.write(http1.AppendBody(nil, nil, true, true))
	}
	statusLabel = statusClass(ex.status)
	c.close()
}

// receive blocks until the client goes away (or the exchange is
// cancelled) and then yields sse.disconnect, forever.
func (ex *sseExchange) receive(ctx context.Context) (gateway.Event, error) {
	select {
	case <-ex.disconnect:
	case <-ctx.Done():
	}
	return gateway.SSEDisconnect{}, nil
}

func (ex *sseExchange) send(ctx context.Context, ev gateway.Event) error {
	switch ev := ev.(type) {
	case gateway.SSEStart:
		if ex.started {
			return violation("second sse.start")
		}
		ex.started = true
		ex.status = ev.Status

		headers := ev.Headers
		if !headers.Has("content-type") {
			headers = appendHeader(headers, "content-type", "text/event-stream")
		}
		if !headers.Has("cache-control") {
			headers = appendHeader(headers, "cache-control", "no-cache")
		}
		// Streams flush their head immediately: clients wait on it before
		// treating the connection as an open event source.
		ex.chunkedOut = ex.req.Version == "1.1" && !headers.Has("content-length")
		return ex.c.write(http1.AppendResponseStart(nil, ev.Status, headers, ex.chunkedOut))

	case gateway.SSESend:
		if !ex.started {
			return violation("sse.send before sse.start")
		}
		return ex.c.write(http1.AppendBody(nil, formatSSEEvent(ev), false, ex.chunkedOut))

	default:
		return violation("invalid event %q for sse scope", ev.EventType())
	}
}

// formatSSEEvent renders one event in text/event-stream framing. The data
// payload is split on newlines into one data: line each.
func formatSSEEvent(ev gateway.SSESend) []byte {
	var b strings.Builder
	if ev.Event != "" {
		b.WriteString("event: ")
		b.WriteString(ev.Event)
		b.WriteByte('\n')
	}
	if ev.ID != "" {
		b.WriteString("id: ")
		b.WriteString(ev.ID)
		b.WriteByte('\n')
	}
	if ev.Retry > 0 {
		b.WriteString("retry: ")
		b.WriteString(strconv.Itoa(ev.Retry))
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	return []byte(b.String())
}
