package server

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gatewire/gatewire/internal/codec/http1"
	"github.com/gatewire/gatewire/pkg/gateway"
)

// connState tracks where a connection is in its lifecycle.
type connState int

const (
	// stateReading: accumulating bytes for the next request or frame.
	stateReading connState = iota
	// stateDispatched: scope built, handler running, exchanging events.
	stateDispatched
	// stateDraining: handler finished, flushing buffered outbound bytes.
	stateDraining
	stateClosed
)

// conn owns one accepted socket and drives it through the state machine:
// Reading -> Dispatched -> Draining -> Reading (HTTP keep-alive) or
// Closed. All failures are contained here; nothing propagates to the
// accept loop.
type conn struct {
	srv    *Server
	rwc    net.Conn
	logger *slog.Logger
	id     string

	// buf accumulates unparsed inbound bytes. Leftover bytes survive an
	// exchange, which is what makes HTTP/1.1 pipelining work.
	buf []byte

	state connState
	tls   bool

	writeMu   sync.Mutex
	closeOnce sync.Once
}

const readChunkSize = 32 << 10

func newConn(s *Server, rwc net.Conn) *conn {
	id := uuid.NewString()
	_, isTLS := rwc.(*tls.Conn)
	return &conn{
		srv:    s,
		rwc:    rwc,
		id:     id,
		tls:    isTLS || s.tlsConfig != nil,
		logger: s.logger.With("conn_id", id, "client", rwc.RemoteAddr().String()),
	}
}

// serve runs the connection until it closes. One goroutine per
// connection; blocking reads and writes suspend only this connection.
func (c *conn) serve(ctx context.Context) {
	defer func() {
		c.close()
		c.srv.trackConn(c, false)
		c.srv.metrics.connClosed()
	}()

	for {
		c.state = stateReading
		req, err := c.readRequest()
		if err != nil {
			var malformed *http1.MalformedRequestError
			switch {
			case errors.As(err, &malformed):
				c.logger.Debug("malformed request", "reason", malformed.Reason)
				c.writeErrorResponse(400, "Bad Request")
			case errors.Is(err, errHeaderTooLarge):
				c.writeErrorResponse(431, "Request Header Fields Too Large")
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
				// Clean close between requests.
			default:
				c.logger.Debug("read error", "error", err)
			}
			return
		}

		c.state = stateDispatched
		switch {
		case req.IsWebSocketUpgrade():
			c.serveWebSocket(ctx, req)
			return // a websocket connection binds to exactly one scope
		case req.WantsEventStream():
			c.serveSSE(ctx, req)
			return // an SSE stream binds to exactly one scope
		default:
			keepAlive := c.serveHTTP(ctx, req)
			if !keepAlive {
				return
			}
		}
	}
}

var errHeaderTooLarge = errors.New("request head exceeds size limit")

// readRequest accumulates bytes until the codec yields one complete
// request head. The read-header timeout bounds idle keep-alive
// connections.
func (c *conn) readRequest() (*http1.Request, error) {
	if c.srv.readHeaderTimeout > 0 {
		_ = c.rwc.SetReadDeadline(time.Now().Add(c.srv.readHeaderTimeout))
	}
	for {
		req, consumed, err := http1.ParseRequest(c.buf)
		if err != nil {
			return nil, err
		}
		if req != nil {
			if consumed > c.srv.maxHeaderBytes {
				return nil, errHeaderTooLarge
			}
			c.buf = c.buf[consumed:]
			_ = c.rwc.SetReadDeadline(time.Time{})
			return req, nil
		}
		if len(c.buf) > c.srv.maxHeaderBytes {
			return nil, errHeaderTooLarge
		}
		if err := c.readMore(); err != nil {
			return nil, err
		}
	}
}

// readMore appends the next chunk of socket bytes to the buffer.
func (c *conn) readMore() error {
	chunk := make([]byte, readChunkSize)
	n, err := c.rwc.Read(chunk)
	if n > 0 {
		c.buf = append(c.buf, chunk[:n]...)
		return nil
	}
	if err == nil {
		err = io.EOF
	}
	return err
}

// write sends raw bytes to the socket. The mutex serializes handler sends
// with background control-frame replies on websocket connections.
func (c *conn) write(p []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	n, err := c.rwc.Write(p)
	c.srv.metrics.wrote(n)
	return err
}

// writeErrorResponse emits a locally-generated plain-text error and marks
// the connection for closing.
func (c *conn) writeErrorResponse(status int, body string) {
	c.state = stateDraining
	_ = c.write(http1.AppendPlainTextResponse(nil, status, body+"\n"))
	c.state = stateClosed
}

// close shuts the socket down exactly once.
func (c *conn) close() {
	c.closeOnce.Do(func() {
		c.state = stateClosed
		_ = c.rwc.Close()
	})
}

// abort resets the connection instead of closing it cleanly. Used when a
// handler fails after response bytes were already flushed: no corrective
// response is possible, so the peer must see a hard failure rather than a
// truncated-but-plausible body.
func (c *conn) abort() {
	c.closeOnce.Do(func() {
		c.state = stateClosed
		if tc, ok := c.rwc.(*net.TCPConn); ok {
			_ = tc.SetLinger(0)
		}
		_ = c.rwc.Close()
	})
}

// addrs resolves the scope client/server addresses.
func (c *conn) addrs() (client, server gateway.Addr) {
	if ap, err := netip.ParseAddrPort(c.rwc.RemoteAddr().String()); err == nil {
		client = gateway.AddrFromAddrPort(ap)
	}
	if ap, err := netip.ParseAddrPort(c.rwc.LocalAddr().String()); err == nil {
		server = gateway.AddrFromAddrPort(ap)
	}
	return client, server
}

// httpScope builds the http scope for one request on this connection.
func (c *conn) httpScope(req *http1.Request) gateway.HTTPScope {
	scheme := "http"
	if c.tls {
		scheme = "https"
	}
	client, server := c.addrs()
	return gateway.HTTPScope{
		HTTPVersion: req.Version,
		Method:      req.Method,
		Scheme:      scheme,
		Path:        req.Path,
		RawPath:     req.RawPath,
		QueryString: req.Query,
		RootPath:    c.srv.rootPath,
		Headers:     req.Headers,
		Client:      client,
		Server:      server,
		State:       c.srv.state,
		Extensions:  c.srv.extensions(),
	}
}

func (c *conn) exchangeLogger(protocol string, req *http1.Request) *slog.Logger {
	return c.logger.With("protocol", protocol, "method", req.Method, "path", req.Path)
}
