package server

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/gatewire/gatewire/pkg/gateway"
)

// HandlerPanicError wraps a panic recovered from the application handler
// so the connection machine can treat it like any other handler failure
// instead of letting it unwind into the accept loop.
type HandlerPanicError struct {
	Value any
	Stack []byte
}

func (e *HandlerPanicError) Error() string {
	return fmt.Sprintf("handler panic: %v", e.Value)
}

// invokeHandler is the single place where control crosses into the
// application handler. It recovers panics into *HandlerPanicError; the
// caller decides how the failure maps onto the wire (500, close frame, or
// connection abort) based on how far the exchange had progressed.
func invokeHandler(ctx context.Context, h gateway.Handler, scope gateway.Scope, receive gateway.ReceiveFunc, send gateway.SendFunc) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &HandlerPanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return h.Serve(ctx, scope, receive, send)
}

// protocolViolation reports a handler breaking the event-exchange
// contract: a body event before a start event, a second start event, or
// an event type foreign to the scope.
type protocolViolation struct {
	msg string
}

func (e *protocolViolation) Error() string { return "protocol violation: " + e.msg }

func violation(format string, args ...any) error {
	return &protocolViolation{msg: fmt.Sprintf(format, args...)}
}
