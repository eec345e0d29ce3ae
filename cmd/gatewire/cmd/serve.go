package cmd

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gatewire/gatewire/internal/config"
	"github.com/gatewire/gatewire/internal/refapp"
	"github.com/gatewire/gatewire/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway with the built-in reference application",
	Long: `Start the Gatewire server serving the built-in reference application.

The reference application exposes:
  GET  /            usage page
  POST /echo        echo the request body
  GET  /uptime      time since startup
  GET  /static/...  static files (when app.static_dir is configured)
  GET  /events      server-sent events stream
  GET  /ws          websocket echo

Examples:
  # Start with config file settings
  gatewire serve

  # Start on a specific address with debug logging
  gatewire serve --addr 0.0.0.0:9000 --dev

  # Start with a specific config file
  gatewire --config /path/to/gatewire.yaml serve`,
	RunE: runServe,
}

var (
	serveAddr string
	devMode   bool
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// CLI flags override config.
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if devMode {
		cfg.DevMode = true
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	logger.Debug("log level configured", "level", cfg.Server.LogLevel, "effective", logLevel.String())

	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	// stop() restores default signal handling so a second Ctrl+C does a
	// hard kill.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	return run(ctx, cfg, logger)
}

// run wires the reference application, metrics, and server together and
// blocks until shutdown.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	metrics := server.NewMetrics(reg)

	if cfg.Server.MetricsAddr != "" {
		go func() {
			if err := server.ServeOps(ctx, cfg.Server.MetricsAddr, reg, logger); err != nil {
				logger.Error("ops endpoint failed", "error", err)
			}
		}()
	}

	app := refapp.New(
		refapp.WithLogger(logger),
		refapp.WithStaticDir(cfg.App.StaticDir),
		refapp.WithSSEInterval(config.Duration(cfg.App.SSEInterval)),
	)

	opts := []server.Option{
		server.WithAddr(cfg.Server.Addr),
		server.WithLogger(logger),
		server.WithMetrics(metrics),
		server.WithRootPath(cfg.Server.RootPath),
		server.WithReusePort(cfg.Server.ReusePort),
		server.WithReadHeaderTimeout(config.Duration(cfg.Server.ReadHeaderTimeout)),
		server.WithDrainTimeout(config.Duration(cfg.Server.DrainTimeout)),
		server.WithLifespanTimeout(config.Duration(cfg.Server.LifespanTimeout)),
		server.WithMaxHeaderBytes(cfg.Server.MaxHeaderBytes),
		server.WithWebSocketMaxMessageSize(cfg.WebSocket.MaxMessageSize),
	}

	if cfg.Server.TLS.Enabled() {
		cert, err := tls.LoadX509KeyPair(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		opts = append(opts, server.WithTLS(&tls.Config{Certificates: []tls.Certificate{cert}}))
	}

	logger.Info("gatewire starting",
		"version", Version,
		"addr", cfg.Server.Addr,
		"metrics_addr", cfg.Server.MetricsAddr,
		"tls", cfg.Server.TLS.Enabled(),
		"reuse_port", cfg.Server.ReusePort,
		"dev_mode", cfg.DevMode,
	)

	srv := server.New(app, opts...)
	if err := srv.ListenAndServe(ctx); err != nil {
		return err
	}

	logger.Info("gatewire stopped")
	return nil
}

// parseLogLevel converts a string log level to slog.Level. Returns
// slog.LevelInfo for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
