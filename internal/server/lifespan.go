package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatewire/gatewire/pkg/gateway"
)

// lifespan drives the once-per-process startup/shutdown phase. The
// handler is invoked exactly once with a lifespan scope; its receive
// yields lifespan.startup and, much later, lifespan.shutdown, and its
// send reports completion or failure of each.
type lifespan struct {
	handler gateway.Handler
	state   gateway.State
	logger  *slog.Logger
	timeout time.Duration

	events      chan gateway.Event
	startupRes  chan error
	shutdownRes chan error
	handlerRes  chan error

	// unsupported is set when the handler rejected the lifespan scope;
	// lifecycle events are then disabled and the server runs without them.
	unsupported bool
	started     bool

	// cancel tears down the handler invocation once the phase it is
	// blocked in can no longer progress (startup failure or after
	// shutdown), so a handler parked in receive() does not leak.
	cancel context.CancelFunc
}

func newLifespan(handler gateway.Handler, state gateway.State, logger *slog.Logger, timeout time.Duration) *lifespan {
	return &lifespan{
		handler:     handler,
		state:       state,
		logger:      logger,
		timeout:     timeout,
		events:      make(chan gateway.Event, 1),
		startupRes:  make(chan error, 1),
		shutdownRes: make(chan error, 1),
		handlerRes:  make(chan error, 1),
	}
}

// startup runs the handler with the lifespan scope and waits for
// lifespan.startup.complete or .failed. A handler returning
// ErrUnsupportedScope disables lifecycle events; any state the handler
// populated before returning is still attached to request scopes.
func (ls *lifespan) startup(ctx context.Context) error {
	scope := gateway.LifespanScope{State: ls.state}

	receive := func(ctx context.Context) (gateway.Event, error) {
		select {
		case ev := <-ls.events:
			return ev, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	send := func(ctx context.Context, ev gateway.Event) error {
		switch ev := ev.(type) {
		case gateway.LifespanStartupComplete:
			ls.startupRes <- nil
		case gateway.LifespanStartupFailed:
			ls.startupRes <- &StartupError{Message: ev.Message}
		case gateway.LifespanShutdownComplete:
			ls.shutdownRes <- nil
		case gateway.LifespanShutdownFailed:
			ls.shutdownRes <- &ShutdownError{Message: ev.Message}
		default:
			return fmt.Errorf("invalid event %q for lifespan scope", ev.EventType())
		}
		return nil
	}

	handlerCtx, cancel := context.WithCancel(context.Background())
	ls.cancel = cancel

	go func() {
		ls.handlerRes <- invokeHandler(handlerCtx, ls.handler, scope, receive, send)
	}()

	ls.events <- gateway.LifespanStartup{}

	timer := time.NewTimer(ls.timeout)
	defer timer.Stop()
	select {
	case err := <-ls.startupRes:
		if err != nil {
			cancel()
			return err
		}
		ls.started = true
		ls.logger.Info("lifespan startup complete")
		return nil
	case err := <-ls.handlerRes:
		cancel()
		if errors.Is(err, gateway.ErrUnsupportedScope) {
			ls.unsupported = true
			ls.logger.Debug("handler does not support lifespan, lifecycle events disabled")
			return nil
		}
		if err == nil {
			err = errors.New("lifespan handler returned before startup.complete")
		}
		return &StartupError{Message: err.Error()}
	case <-timer.C:
		cancel()
		return &StartupError{Message: errLifespanTimeout.Error()}
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// shutdownPhase delivers lifespan.shutdown and waits for completion. A
// failure is returned for logging but must not prevent process exit.
func (ls *lifespan) shutdownPhase() error {
	if ls.unsupported || !ls.started {
		return nil
	}
	defer ls.cancel()

	select {
	case ls.events <- gateway.LifespanShutdown{}:
	default:
		return errors.New("lifespan handler is not receiving")
	}

	timer := time.NewTimer(ls.timeout)
	defer timer.Stop()
	select {
	case err := <-ls.shutdownRes:
		if err == nil {
			ls.logger.Info("lifespan shutdown complete")
		}
		return err
	case err := <-ls.handlerRes:
		if err != nil && !errors.Is(err, gateway.ErrUnsupportedScope) {
			return &ShutdownError{Message: err.Error()}
		}
		return nil
	case <-timer.C:
		return &ShutdownError{Message: errLifespanTimeout.Error()}
	}
}
