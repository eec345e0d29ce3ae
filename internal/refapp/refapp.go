// Package refapp is the reference application served by "gatewire serve".
// It exists to exercise every part of the gateway contract end to end:
// plain HTTP exchanges, request body echo, shared lifecycle state, static
// file serving with Range support, a WebSocket echo endpoint, and a
// server-sent-events ticker.
package refapp

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gatewire/gatewire/pkg/gateway"
)

// App implements gateway.Handler over all four scope types.
type App struct {
	logger *slog.Logger

	// staticDir is the directory served under /static/. Empty disables
	// static file serving.
	staticDir string

	// sseInterval is the tick period of the /events stream.
	sseInterval time.Duration
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithStaticDir enables static file serving from dir under /static/.
func WithStaticDir(dir string) Option {
	return func(a *App) { a.staticDir = dir }
}

// WithSSEInterval sets the /events tick period. Non-positive values keep
// the default.
func WithSSEInterval(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.sseInterval = d
		}
	}
}

// New builds the reference application.
func New(opts ...Option) *App {
	a := &App{
		logger:      slog.Default(),
		sseInterval: time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Serve dispatches on the scope type. Unknown scope types are declined so
// the server can produce its standard error response.
func (a *App) Serve(ctx context.Context, scope gateway.Scope, receive gateway.ReceiveFunc, send gateway.SendFunc) error {
	switch s := scope.(type) {
	case gateway.LifespanScope:
		return a.serveLifespan(ctx, s, receive, send)
	case gateway.HTTPScope:
		return a.serveHTTP(ctx, s, receive, send)
	case gateway.SSEScope:
		return a.serveEvents(ctx, s, receive, send)
	case gateway.WebSocketScope:
		return a.serveWebSocket(ctx, s, receive, send)
	default:
		return gateway.ErrUnsupportedScope
	}
}

// serveLifespan records the process start time in the shared state map and
// acknowledges both lifecycle phases.
func (a *App) serveLifespan(ctx context.Context, scope gateway.LifespanScope, receive gateway.ReceiveFunc, send gateway.SendFunc) error {
	for {
		ev, err := receive(ctx)
		if err != nil {
			return err
		}
		switch ev.(type) {
		case gateway.LifespanStartup:
			scope.State["started_at"] = time.Now()
			a.logger.Info("application started")
			if err := send(ctx, gateway.LifespanStartupComplete{}); err != nil {
				return err
			}
		case gateway.LifespanShutdown:
			a.logger.Info("application shutting down")
			return send(ctx, gateway.LifespanShutdownComplete{})
		default:
			return fmt.Errorf("unexpected lifespan event %q", ev.EventType())
		}
	}
}
