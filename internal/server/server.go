// Package server implements the Gatewire server core: the listener, the
// per-connection state machine, the HTTP/1.1 and WebSocket wire handling,
// and the process lifecycle phase. It drives a single application handler
// through the (scope, receive, send) contract of pkg/gateway.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gatewire/gatewire/pkg/gateway"
)

// Server accepts raw TCP connections and serves them through the
// registered handler. Connections are fully independent: one goroutine
// per connection, no cross-connection ordering guarantees.
type Server struct {
	handler gateway.Handler
	logger  *slog.Logger
	metrics *Metrics

	addr      string
	tlsConfig *tls.Config
	rootPath  string
	reusePort bool

	readHeaderTimeout time.Duration
	drainTimeout      time.Duration
	lifespanTimeout   time.Duration
	maxHeaderBytes    int
	wsMaxMessageSize  int64

	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	shutdown bool

	// state is the process-wide shared state map. It is populated by the
	// lifespan startup phase before the first accept, which establishes
	// the happens-before edge that makes unlocked reads from connection
	// goroutines safe.
	state gateway.State
}

// Option configures a Server.
type Option func(*Server)

// WithAddr sets the listen address. Default is "127.0.0.1:8000".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTLS enables TLS termination with the given config. Scopes then
// advertise the "tls" extension and use the https/wss schemes.
func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = cfg }
}

// WithRootPath sets the mount prefix reported in every request scope.
func WithRootPath(rootPath string) Option {
	return func(s *Server) { s.rootPath = rootPath }
}

// WithReusePort enables SO_REUSEPORT on the listening socket so multiple
// independent server processes can share one port (no-op on Windows).
func WithReusePort(enabled bool) Option {
	return func(s *Server) { s.reusePort = enabled }
}

// WithReadHeaderTimeout bounds how long a connection may sit idle before
// delivering a complete request head. Zero disables the limit.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(s *Server) { s.readHeaderTimeout = d }
}

// WithDrainTimeout bounds how long shutdown waits for in-flight
// connections before closing them.
func WithDrainTimeout(d time.Duration) Option {
	return func(s *Server) { s.drainTimeout = d }
}

// WithLifespanTimeout bounds the wait for startup/shutdown completion
// events from the handler.
func WithLifespanTimeout(d time.Duration) Option {
	return func(s *Server) { s.lifespanTimeout = d }
}

// WithMaxHeaderBytes bounds the request head size.
func WithMaxHeaderBytes(n int) Option {
	return func(s *Server) { s.maxHeaderBytes = n }
}

// WithWebSocketMaxMessageSize bounds reassembled WebSocket messages.
func WithWebSocketMaxMessageSize(n int64) Option {
	return func(s *Server) { s.wsMaxMessageSize = n }
}

// New creates a Server for the given handler.
func New(handler gateway.Handler, opts ...Option) *Server {
	s := &Server{
		handler:           handler,
		logger:            slog.Default(),
		addr:              "127.0.0.1:8000",
		readHeaderTimeout: 30 * time.Second,
		drainTimeout:      10 * time.Second,
		lifespanTimeout:   30 * time.Second,
		maxHeaderBytes:    64 << 10,
		conns:             make(map[*conn]struct{}),
		state:             gateway.State{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the bound listener address, valid after ListenAndServe has
// started accepting. Useful with ":0" test listeners.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe runs the full server lifecycle: lifespan startup, accept
// loop, and on context cancellation a graceful drain followed by lifespan
// shutdown. It blocks until shutdown completes or startup fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ls := newLifespan(s.handler, s.state, s.logger, s.lifespanTimeout)
	if err := ls.startup(ctx); err != nil {
		return fmt.Errorf("lifespan startup: %w", err)
	}

	lc := net.ListenConfig{}
	if s.reusePort {
		lc.Control = reusePortControl
	}
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		ls.cancel()
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	if s.tlsConfig != nil {
		ln = tls.NewListener(ln, s.tlsConfig)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("gateway listening", "addr", ln.Addr().String(), "tls", s.tlsConfig != nil)

	// Close the listener when the context is cancelled so Accept unblocks.
	acceptDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.shutdown = true
			s.mu.Unlock()
			ln.Close()
		case <-acceptDone:
		}
	}()

	err = s.acceptLoop(ctx, ln)
	close(acceptDone)

	if ctx.Err() != nil {
		// Graceful shutdown path: the accept error was caused by closing
		// the listener, not by a real failure.
		s.drain()
		if shutdownErr := ls.shutdownPhase(); shutdownErr != nil {
			// Reported, not fatal: shutdown proceeds regardless.
			s.logger.Error("lifespan shutdown failed", "error", shutdownErr)
		}
		return nil
	}
	ls.cancel()
	return err
}

// acceptLoop accepts connections until the listener is closed. Temporary
// accept errors are retried with exponential backoff; per-connection
// errors never reach this loop.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	var backoff time.Duration
	for {
		rwc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.shutdown
			s.mu.Unlock()
			if closing {
				return nil
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else if backoff *= 2; backoff > time.Second {
					backoff = time.Second
				}
				s.logger.Warn("accept error, retrying", "error", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		backoff = 0

		c := newConn(s, rwc)
		s.trackConn(c, true)
		s.metrics.connOpened()
		go c.serve(ctx)
	}
}

func (s *Server) trackConn(c *conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[c] = struct{}{}
	} else {
		delete(s.conns, c)
	}
}

// drain waits for in-flight connections up to the drain deadline, then
// force-closes whatever remains.
func (s *Server) drain() {
	deadline := time.Now().Add(s.drainTimeout)
	for {
		s.mu.Lock()
		n := len(s.conns)
		s.mu.Unlock()
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	s.mu.Lock()
	remaining := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		remaining = append(remaining, c)
	}
	s.mu.Unlock()

	if len(remaining) > 0 {
		s.logger.Warn("drain deadline exceeded, closing connections", "count", len(remaining))
		for _, c := range remaining {
			c.close()
		}
	}

	// Give the closed connections a moment to unwind their goroutines.
	for i := 0; i < 100; i++ {
		s.mu.Lock()
		n := len(s.conns)
		s.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// extensions returns the capability set advertised in request scopes.
func (s *Server) extensions() gateway.Extensions {
	ext := gateway.Extensions{gateway.ExtensionFullFlush: {}}
	if s.tlsConfig != nil {
		ext[gateway.ExtensionTLS] = struct{}{}
	}
	return ext
}

// StartupError reports that the handler answered lifespan.startup with
// startup.failed. It aborts server start entirely.
type StartupError struct {
	Message string
}

func (e *StartupError) Error() string {
	return "startup failed: " + e.Message
}

// ShutdownError reports that the handler answered lifespan.shutdown with
// shutdown.failed. It is logged, never fatal.
type ShutdownError struct {
	Message string
}

func (e *ShutdownError) Error() string {
	return "shutdown failed: " + e.Message
}

var errLifespanTimeout = errors.New("timed out waiting for lifespan event")
