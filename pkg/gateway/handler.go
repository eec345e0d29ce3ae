package gateway

import (
	"context"
	"errors"
)

// ErrUnsupportedScope is returned by a handler that does not serve the
// given scope type. The server translates it into a 500 response for
// http/sse scopes, a handshake rejection or close frame for websocket
// scopes, and a silent no-op for the lifespan scope (lifecycle events are
// then simply disabled).
//
// A handler must return it before sending any start-class event.
var ErrUnsupportedScope = errors.New("gateway: unsupported scope type")

// ReceiveFunc suspends until the next inbound event is available. After
// the connection closes it yields a terminal disconnect-class event
// forever. The server never reads ahead of the handler: at most one event
// is pending at any time, so a slow handler exerts backpressure all the
// way down to the TCP socket.
type ReceiveFunc func(ctx context.Context) (Event, error)

// SendFunc encodes and writes one outbound event. It fails when called
// with a body-class event before a start-class event, or twice with a
// start-class event. A send against a full socket write buffer blocks the
// calling goroutine until space is available.
type SendFunc func(ctx context.Context, event Event) error

// Handler is the application entry point. The server invokes Serve once
// per exchange with a read-only scope and the receive/send pair, and waits
// for it to return. Returning a non-nil error (or panicking) after a
// start-class event was sent aborts the connection; before that, the
// server still owns the wire and produces a protocol-correct error
// response.
type Handler interface {
	Serve(ctx context.Context, scope Scope, receive ReceiveFunc, send SendFunc) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, scope Scope, receive ReceiveFunc, send SendFunc) error

// Serve calls f.
func (f HandlerFunc) Serve(ctx context.Context, scope Scope, receive ReceiveFunc, send SendFunc) error {
	return f(ctx, scope, receive, send)
}
