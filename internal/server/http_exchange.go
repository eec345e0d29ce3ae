package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gatewire/gatewire/internal/codec/http1"
	"github.com/gatewire/gatewire/pkg/gateway"
)

// httpExchange drives one request/response exchange. The handler runs in
// the connection goroutine; its receive pulls request-body bytes straight
// off the socket (so the handler's pace is the read pace, one pending
// event at most) and its send serializes events onto the wire as they
// arrive, streaming rather than buffering the whole response.
//
// The response head is deferred until the first body event. That one
// decision buys three behaviors at once: HEAD responses can carry the
// real Content-Length with no body bytes, single-shot responses get a
// Content-Length instead of chunked framing, and file sends can have
// their length and ETag computed before any byte is flushed.
type httpExchange struct {
	c   *conn
	req *http1.Request

	// receive side
	bodyRemaining int64
	bodyDone      bool
	sent100       bool
	disconnected  bool // disconnect delivered; receive repeats it forever
	chunks        http1.ChunkDecoder

	// send side
	status       int
	headers      gateway.Headers
	declaredLen  int64 // content-length from handler headers, -1 absent
	suppressBody bool  // HEAD, 204, 304, 1xx
	started      bool  // start event accepted
	wroteHeader  bool  // header bytes flushed to the socket
	finished     bool
	chunkedOut   bool
	written      int64 // body bytes seen (counted even when suppressed)
	forceClose   bool
	fatal        error // file-send failure: connection must die
}

func newHTTPExchange(c *conn, req *http1.Request) *httpExchange {
	return &httpExchange{
		c:             c,
		req:           req,
		bodyRemaining: req.ContentLength,
		bodyDone:      !req.HasBody(),
		declaredLen:   -1,
	}
}

// serveHTTP runs one HTTP exchange and reports whether the connection can
// return to Reading for the next keep-alive request.
func (c *conn) serveHTTP(ctx context.Context, req *http1.Request) (keepAlive bool) {
	start := time.Now()
	logger := c.exchangeLogger("http", req)
	ex := newHTTPExchange(c, req)
	scope := c.httpScope(req)

	exCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := invokeHandler(exCtx, c.srv.handler, scope, ex.receive, ex.send)

	c.state = stateDraining
	statusLabel := "aborted"
	defer func() {
		c.srv.metrics.exchangeDone("http", statusLabel, start)
		logger.Debug("exchange finished",
			"status", ex.status,
			"duration", time.Since(start),
			"keep_alive", keepAlive,
		)
	}()

	switch {
	case ex.fatal != nil:
		logger.Warn("file send failed, closing connection", "error", ex.fatal)
		if !ex.wroteHeader {
			c.writeErrorResponse(500, "Internal Server Error")
			statusLabel = "5xx"
			return false
		}
		c.abort()
		return false

	case err != nil:
		if !ex.wroteHeader {
			// The wire is still clean: a protocol-correct error response
			// is possible.
			if errors.Is(err, gateway.ErrUnsupportedScope) {
				c.srv.metrics.failure("unsupported")
				logger.Warn("handler does not support http scope")
			} else {
				c.srv.metrics.failure("error_response")
				logHandlerError(logger, err)
			}
			c.writeErrorResponse(500, "Internal Server Error")
			statusLabel = "5xx"
			return false
		}
		// Headers already flushed: no clean error response exists. Abort
		// so the peer sees a hard failure, not a truncated body.
		c.srv.metrics.failure("aborted")
		logHandlerError(logger, err)
		c.abort()
		return false

	case !ex.started:
		logger.Warn("handler completed without sending a response")
		c.writeErrorResponse(500, "Internal Server Error")
		statusLabel = "5xx"
		return false
	}

	if ferr := ex.finalize(); ferr != nil {
		logger.Debug("write error during finalize", "error", ferr)
		return false
	}
	statusLabel = statusClass(ex.status)

	if !req.KeepAlive || ex.forceClose {
		return false
	}
	if !ex.bodyDone && !ex.drainBody() {
		return false
	}
	return true
}

func logHandlerError(logger interface {
	Error(msg string, args ...any)
}, err error) {
	var pe *HandlerPanicError
	if errors.As(err, &pe) {
		logger.Error("handler panicked", "panic", fmt.Sprint(pe.Value), "stack", string(pe.Stack))
		return
	}
	logger.Error("handler failed", "error", err)
}

// receive yields the next inbound event: request-body chunks while the
// body lasts, then a terminal disconnect once the exchange winds down.
// Body bytes are pulled from the socket on demand; nothing is read ahead
// of the handler.
func (ex *httpExchange) receive(ctx context.Context) (gateway.Event, error) {
	if ex.disconnected {
		return gateway.HTTPDisconnect{}, nil
	}
	if ex.bodyDone {
		// No read-ahead is possible here without consuming a pipelined
		// follow-up request, so disconnect is reported when the exchange
		// context ends rather than by sniffing the socket.
		<-ctx.Done()
		return ex.disconnect()
	}

	if ex.req.ExpectContinue && !ex.sent100 {
		ex.sent100 = true
		if err := ex.c.write(http1.Continue100); err != nil {
			ex.bodyDone = true
			return ex.disconnect()
		}
	}

	if ex.req.Chunked {
		return ex.receiveChunked()
	}
	return ex.receiveFixed()
}

// disconnect delivers the terminal disconnect event; every receive after
// it returns the same event immediately.
func (ex *httpExchange) disconnect() (gateway.Event, error) {
	ex.disconnected = true
	return gateway.HTTPDisconnect{}, nil
}

func (ex *httpExchange) receiveFixed() (gateway.Event, error) {
	if ex.bodyRemaining <= 0 {
		ex.bodyDone = true
		return gateway.HTTPRequest{}, nil
	}
	for len(ex.c.buf) == 0 {
		if err := ex.c.readMore(); err != nil {
			ex.bodyDone = true
			return ex.disconnect()
		}
	}
	take := ex.bodyRemaining
	if int64(len(ex.c.buf)) < take {
		take = int64(len(ex.c.buf))
	}
	body := append([]byte(nil), ex.c.buf[:take]...)
	ex.c.buf = ex.c.buf[take:]
	ex.bodyRemaining -= take

	more := ex.bodyRemaining > 0
	if !more {
		ex.bodyDone = true
	}
	return gateway.HTTPRequest{Body: body, More: more}, nil
}

func (ex *httpExchange) receiveChunked() (gateway.Event, error) {
	for {
		data, consumed, done, err := ex.chunks.Next(ex.c.buf)
		if consumed > 0 {
			ex.c.buf = ex.c.buf[consumed:]
		}
		if err != nil {
			// Malformed mid-body framing poisons the connection.
			ex.bodyDone = true
			ex.forceClose = true
			return ex.disconnect()
		}
		if done {
			ex.bodyDone = true
			return gateway.HTTPRequest{}, nil
		}
		if data != nil {
			return gateway.HTTPRequest{Body: data, More: true}, nil
		}
		if consumed > 0 {
			// Framing-only progress (size line or chunk terminator); the
			// buffer may already hold the next piece.
			continue
		}
		if rerr := ex.c.readMore(); rerr != nil {
			ex.bodyDone = true
			return ex.disconnect()
		}
	}
}

// send accepts one outbound event from the handler, enforcing the
// start-before-body and single-start rules.
func (ex *httpExchange) send(ctx context.Context, ev gateway.Event) error {
	switch ev := ev.(type) {
	case gateway.HTTPResponseStart:
		return ex.acceptStart(ev)
	case gateway.HTTPResponseBody:
		if !ex.started {
			return violation("http.response.body before http.response.start")
		}
		if ex.finished {
			return violation("http.response.body after response completed")
		}
		if ev.Path != "" || ev.File != nil {
			// File sends are implicitly terminal; a More flag on them is
			// silently ignored.
			return ex.sendFile(ev)
		}
		return ex.sendBytes(ev.Body, !ev.More)
	default:
		return violation("invalid event %q for http scope", ev.EventType())
	}
}

func (ex *httpExchange) acceptStart(ev gateway.HTTPResponseStart) error {
	if ex.started {
		return violation("second http.response.start")
	}
	ex.started = true
	ex.status = ev.Status
	ex.headers = ev.Headers
	ex.suppressBody = ex.req.Method == "HEAD" ||
		ev.Status == 204 || ev.Status == 304 || ev.Status < 200

	if cl, ok := ev.Headers.Get("content-length"); ok {
		n, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || n < 0 {
			return violation("invalid content-length header %q", cl)
		}
		ex.declaredLen = n
	}
	if connHdr, ok := ev.Headers.Get("connection"); ok && http1.HeaderListContains(connHdr, "close") {
		ex.forceClose = true
	}
	return nil
}

// sendBytes streams one body chunk, flushing the deferred header first.
func (ex *httpExchange) sendBytes(body []byte, final bool) error {
	ex.written += int64(len(body))
	if ex.suppressBody {
		if final {
			return ex.finalize()
		}
		return nil
	}

	var out []byte
	if !ex.wroteHeader {
		out = ex.headerBytes(int64(len(body)), final)
	}
	out = http1.AppendBody(out, body, final, ex.chunkedOut)
	if final {
		ex.finished = true
	}
	return ex.c.write(out)
}

// headerBytes serializes the deferred response head. firstLen/final
// describe the body event triggering the flush, which decides the
// framing: a declared content-length wins; a single-shot body gets an
// injected content-length; a stream gets chunked framing on HTTP/1.1 and
// raw-until-close on HTTP/1.0.
func (ex *httpExchange) headerBytes(firstLen int64, final bool) []byte {
	headers := ex.headers
	switch {
	case ex.declaredLen >= 0:
		// Fixed framing as declared.
	case ex.suppressBody:
		// Body is suppressed on the wire: report the length the response
		// would have had.
		headers = appendHeader(headers, "content-length", strconv.FormatInt(firstLen, 10))
	case final:
		headers = appendHeader(headers, "content-length", strconv.FormatInt(firstLen, 10))
	case ex.req.Version == "1.1":
		ex.chunkedOut = true
	default:
		// HTTP/1.0 stream: length is delimited by connection close.
		ex.forceClose = true
	}
	ex.wroteHeader = true
	return http1.AppendResponseStart(nil, ex.status, headers, ex.chunkedOut)
}

// finalize completes the response after the handler returns: a deferred
// header that never flushed is written now (this is the HEAD/empty-body
// path), and an open chunked stream gets its terminator.
func (ex *httpExchange) finalize() error {
	if ex.finished {
		return nil
	}
	ex.finished = true
	if !ex.wroteHeader {
		out := ex.headerBytes(ex.written, true)
		return ex.c.write(out)
	}
	if ex.chunkedOut {
		return ex.c.write(http1.AppendBody(nil, nil, true, true))
	}
	return nil
}

// drainBody discards an unconsumed request body so the next pipelined
// request parses cleanly. Oversized leftovers force a close instead.
const maxDrainBytes = 256 << 10

func (ex *httpExchange) drainBody() bool {
	drained := int64(0)
	if ex.req.Chunked {
		// The exchange decoder carries over so a body abandoned mid-chunk
		// drains from where the handler stopped.
		for {
			data, consumed, done, err := ex.chunks.Next(ex.c.buf)
			if consumed > 0 {
				ex.c.buf = ex.c.buf[consumed:]
			}
			if err != nil {
				return false
			}
			if done {
				ex.bodyDone = true
				return true
			}
			if data != nil {
				if drained += int64(len(data)); drained > maxDrainBytes {
					return false
				}
				continue
			}
			if consumed > 0 {
				continue
			}
			if err := ex.c.readMore(); err != nil {
				return false
			}
		}
	}

	if ex.bodyRemaining > maxDrainBytes {
		return false
	}
	for ex.bodyRemaining > 0 {
		if len(ex.c.buf) == 0 {
			if err := ex.c.readMore(); err != nil {
				return false
			}
		}
		take := ex.bodyRemaining
		if int64(len(ex.c.buf)) < take {
			take = int64(len(ex.c.buf))
		}
		ex.c.buf = ex.c.buf[take:]
		ex.bodyRemaining -= take
	}
	ex.bodyDone = true
	return true
}

func appendHeader(hs gateway.Headers, name, value string) gateway.Headers {
	out := make(gateway.Headers, 0, len(hs)+1)
	out = append(out, hs...)
	return append(out, gateway.Header{Name: name, Value: value})
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
