package server

import (
	"context"
	"errors"
	"time"

	"github.com/gatewire/gatewire/internal/codec/http1"
	"github.com/gatewire/gatewire/internal/codec/wsframe"
	"github.com/gatewire/gatewire/pkg/gateway"
)

// wsExchange drives one WebSocket connection from handshake to close.
// Inbound frames are decoded by a reader pump into a single-slot event
// channel: the pump cannot run ahead of the handler by more than one
// message, which carries backpressure from a slow handler all the way to
// the peer's TCP window. The pump also answers pings while the handler is
// busy, and it is torn down the moment the handler returns.
type wsExchange struct {
	c   *conn
	req *http1.Request

	connectDelivered bool
	accepted         bool
	rejected         bool // websocket.close before accept: handshake refused
	closeSent        bool

	events     chan gateway.Event
	pumpCancel context.CancelFunc

	// disconnect is the terminal event; once set, receive yields it
	// forever.
	disconnect *gateway.WebSocketDisconnect
}

func (c *conn) serveWebSocket(ctx context.Context, req *http1.Request) {
	start := time.Now()
	logger := c.exchangeLogger("websocket", req)

	key, hasKey := req.Headers.Get("sec-websocket-key")
	version, _ := req.Headers.Get("sec-websocket-version")
	if !hasKey || version != "13" {
		logger.Debug("invalid websocket handshake", "has_key", hasKey, "version", version)
		c.writeErrorResponse(400, "Bad Request")
		return
	}

	ex := &wsExchange{
		c:      c,
		req:    req,
		events: make(chan gateway.Event, 1),
	}

	exCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	err := ex.invoke(exCtx, key)

	// Stop the reader pump before anything else so it cannot sit in a
	// blocked receive forever.
	if ex.pumpCancel != nil {
		ex.pumpCancel()
	}

	c.state = stateDraining
	statusLabel := "aborted"
	defer func() {
		c.srv.metrics.exchangeDone("websocket", statusLabel, start)
	}()

	switch {
	case err != nil && !ex.accepted && !ex.rejected:
		// The upgrade was never answered: the wire is still HTTP, so an
		// HTTP error response is the only protocol-correct translation.
		if errors.Is(err, gateway.ErrUnsupportedScope) {
			c.srv.metrics.failure("unsupported")
			logger.Warn("handler does not support websocket scope")
		} else {
			c.srv.metrics.failure("error_response")
			logHandlerError(logger, err)
		}
		c.writeErrorResponse(500, "Internal Server Error")
		statusLabel = "5xx"

	case err != nil:
		c.srv.metrics.failure("aborted")
		logHandlerError(logger, err)
		if ex.accepted && !ex.closeSent {
			_ = c.write(wsframe.AppendClose(nil, wsframe.CloseInternalError, ""))
		}
		c.abort()

	case ex.rejected:
		statusLabel = "4xx"

	case !ex.accepted:
		logger.Warn("handler completed without answering the handshake")
		c.writeErrorResponse(403, "Forbidden")
		statusLabel = "4xx"

	default:
		if !ex.closeSent {
			_ = c.write(wsframe.AppendClose(nil, wsframe.CloseNormal, ""))
		}
		statusLabel = "2xx"
		c.close()
	}
}

// invoke runs the handler against this exchange. Split out so the
// handshake key can be captured by the send closure.
func (ex *wsExchange) invoke(ctx context.Context, key string) error {
	scope := ex.c.wsScope(ex.req)
	receive := ex.receive
	send := func(ctx context.Context, ev gateway.Event) error {
		return ex.send(ctx, ev, key)
	}
	return invokeHandler(ctx, ex.c.srv.handler, scope, receive, send)
}

func (c *conn) wsScope(req *http1.Request) gateway.WebSocketScope {
	scheme := "ws"
	if c.tls {
		scheme = "wss"
	}
	client, server := c.addrs()
	return gateway.WebSocketScope{
		HTTPVersion:  req.Version,
		Scheme:       scheme,
		Path:         req.Path,
		RawPath:      req.RawPath,
		QueryString:  req.Query,
		RootPath:     c.srv.rootPath,
		Headers:      req.Headers,
		Subprotocols: req.Subprotocols(),
		Client:       client,
		Server:       server,
		State:        c.srv.state,
		Extensions:   c.srv.extensions(),
	}
}

// receive yields websocket.connect first, then messages from the reader
// pump, then the terminal disconnect forever.
func (ex *wsExchange) receive(ctx context.Context) (gateway.Event, error) {
	if !ex.connectDelivered {
		ex.connectDelivered = true
		return gateway.WebSocketConnect{}, nil
	}
	if ex.disconnect != nil {
		return *ex.disconnect, nil
	}
	if !ex.accepted {
		// Nothing can arrive before the handshake is answered.
		<-ctx.Done()
		d := gateway.WebSocketDisconnect{Code: 1006}
		ex.disconnect = &d
		return d, nil
	}

	select {
	case ev, ok := <-ex.events:
		if !ok {
			d := gateway.WebSocketDisconnect{Code: 1006}
			ex.disconnect = &d
			return d, nil
		}
		if d, isDisconnect := ev.(gateway.WebSocketDisconnect); isDisconnect {
			ex.disconnect = &d
		}
		return ev, nil
	case <-ctx.Done():
		d := gateway.WebSocketDisconnect{Code: 1006}
		ex.disconnect = &d
		return d, nil
	}
}

func (ex *wsExchange) send(ctx context.Context, ev gateway.Event, key string) error {
	switch ev := ev.(type) {
	case gateway.WebSocketAccept:
		if ex.accepted {
			return violation("second websocket.accept")
		}
		if ex.rejected {
			return violation("websocket.accept after websocket.close")
		}
		headers := gateway.Headers{
			{Name: "upgrade", Value: "websocket"},
			{Name: "connection", Value: "Upgrade"},
			{Name: "sec-websocket-accept", Value: wsframe.AcceptKey(key)},
		}
		if ev.Subprotocol != "" {
			headers = appendHeader(headers, "sec-websocket-protocol", ev.Subprotocol)
		}
		headers = append(headers, ev.Headers...)
		if err := ex.c.write(http1.AppendResponseStart(nil, 101, headers, false)); err != nil {
			return err
		}
		ex.accepted = true

		pumpCtx, cancel := context.WithCancel(context.Background())
		ex.pumpCancel = cancel
		go ex.pump(pumpCtx)
		return nil

	case gateway.WebSocketSend:
		if !ex.accepted {
			return violation("websocket.send before websocket.accept")
		}
		if ex.closeSent {
			return violation("websocket.send after websocket.close")
		}
		switch {
		case ev.Text != nil && ev.Bytes == nil:
			return ex.c.write(wsframe.AppendFrame(nil, true, wsframe.OpText, []byte(*ev.Text)))
		case ev.Bytes != nil && ev.Text == nil:
			return ex.c.write(wsframe.AppendFrame(nil, true, wsframe.OpBinary, ev.Bytes))
		default:
			return violation("websocket.send must carry exactly one of text or bytes")
		}

	case gateway.WebSocketClose:
		if !ex.accepted {
			// Closing before accepting rejects the handshake with a plain
			// HTTP response instead of a close frame.
			ex.rejected = true
			ex.c.writeErrorResponse(403, "Forbidden")
			return nil
		}
		if ex.closeSent {
			return violation("second websocket.close")
		}
		code := ev.Code
		if code == 0 {
			code = wsframe.CloseNormal
		}
		ex.closeSent = true
		return ex.c.write(wsframe.AppendClose(nil, code, ev.Reason))

	default:
		return violation("invalid event %q for websocket scope", ev.EventType())
	}
}

// pump decodes inbound frames into events. Control frames are handled
// here (pings answered immediately, close echoed), data frames are
// reassembled into messages and delivered through the single-slot
// channel. A framing error closes the connection with the error's close
// code, 1002 for protocol violations.
func (ex *wsExchange) pump(ctx context.Context) {
	defer close(ex.events)

	asm := wsframe.Assembler{MaxMessageSize: ex.c.srv.wsMaxMessageSize}
	for {
		frame, consumed, err := wsframe.ParseFrame(ex.c.buf, true, ex.c.srv.wsMaxMessageSize)
		if err != nil {
			ex.pumpFramingError(ctx, err)
			return
		}
		if frame == nil {
			if rerr := ex.c.readMore(); rerr != nil {
				ex.push(ctx, gateway.WebSocketDisconnect{Code: 1006})
				return
			}
			continue
		}
		ex.c.buf = ex.c.buf[consumed:]

		if frame.IsControl() {
			switch frame.Opcode {
			case wsframe.OpPing:
				if werr := ex.c.write(wsframe.AppendFrame(nil, true, wsframe.OpPong, frame.Payload)); werr != nil {
					ex.push(ctx, gateway.WebSocketDisconnect{Code: 1006})
					return
				}
			case wsframe.OpPong:
				// Unsolicited pongs are permitted and ignored.
			case wsframe.OpClose:
				code, reason, derr := wsframe.DecodeClose(frame.Payload)
				if derr != nil {
					ex.pumpFramingError(ctx, derr)
					return
				}
				if !ex.closeSent {
					// Echo the close handshake before surfacing the
					// disconnect.
					_ = ex.c.write(wsframe.AppendClose(nil, code, ""))
				}
				ex.push(ctx, gateway.WebSocketDisconnect{Code: code, Reason: reason})
				return
			}
			continue
		}

		msg, aerr := asm.Push(frame)
		if aerr != nil {
			ex.pumpFramingError(ctx, aerr)
			return
		}
		if msg == nil {
			continue
		}
		var ev gateway.WebSocketReceive
		if msg.Text {
			text := string(msg.Payload)
			ev.Text = &text
		} else {
			ev.Bytes = msg.Payload
		}
		if !ex.push(ctx, ev) {
			return
		}
	}
}

// pumpFramingError sends the protocol-error close frame and surfaces the
// failure to the handler as a disconnect carrying the close code.
func (ex *wsExchange) pumpFramingError(ctx context.Context, err error) {
	code := wsframe.CloseProtocolError
	var fe *wsframe.FramingError
	if errors.As(err, &fe) && fe.Code != 0 {
		code = fe.Code
	}
	ex.c.logger.Debug("websocket framing error", "error", err)
	if !ex.closeSent {
		_ = ex.c.write(wsframe.AppendClose(nil, code, ""))
	}
	ex.push(ctx, gateway.WebSocketDisconnect{Code: code})
}

// push delivers one event, blocking until the handler consumes the
// previous one. False means the exchange ended first.
func (ex *wsExchange) push(ctx context.Context, ev gateway.Event) bool {
	select {
	case ex.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
