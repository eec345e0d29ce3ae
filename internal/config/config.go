// Package config provides configuration types and loading for Gatewire.
package config

import "time"

// Config is the top-level configuration for the Gatewire server.
type Config struct {
	// Server configures the gateway listener and connection limits.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// WebSocket configures WebSocket framing limits.
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`

	// App configures the built-in reference application served by
	// "gatewire serve".
	App AppConfig `yaml:"app" mapstructure:"app"`

	// DevMode enables development features (debug logging).
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the gateway listener.
type ServerConfig struct {
	// Addr is the host:port the gateway listens on.
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port"`

	// MetricsAddr is the host:port of the operational endpoint
	// (/metrics, /healthz). Empty disables it.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// RootPath is the mount prefix reported in every request scope.
	RootPath string `yaml:"root_path" mapstructure:"root_path"`

	// ReadHeaderTimeout bounds how long a connection may idle before
	// completing a request head (e.g. "30s"). "0" disables the limit.
	ReadHeaderTimeout string `yaml:"read_header_timeout" mapstructure:"read_header_timeout" validate:"omitempty,duration"`

	// DrainTimeout bounds the graceful-shutdown wait for in-flight
	// connections (e.g. "10s").
	DrainTimeout string `yaml:"drain_timeout" mapstructure:"drain_timeout" validate:"omitempty,duration"`

	// LifespanTimeout bounds the wait for lifecycle completion events.
	LifespanTimeout string `yaml:"lifespan_timeout" mapstructure:"lifespan_timeout" validate:"omitempty,duration"`

	// MaxHeaderBytes bounds the request head size.
	MaxHeaderBytes int `yaml:"max_header_bytes" mapstructure:"max_header_bytes" validate:"omitempty,min=1024"`

	// ReusePort sets SO_REUSEPORT on the listening socket so multiple
	// gatewire processes can share one port (ignored on Windows).
	ReusePort bool `yaml:"reuse_port" mapstructure:"reuse_port"`

	// TLS enables TLS termination when both files are set.
	TLS TLSConfig `yaml:"tls" mapstructure:"tls"`
}

// TLSConfig holds the certificate pair for TLS termination. The TLS
// handshake itself is delegated to crypto/tls.
type TLSConfig struct {
	CertFile string `yaml:"cert_file" mapstructure:"cert_file" validate:"omitempty,file"`
	KeyFile  string `yaml:"key_file" mapstructure:"key_file" validate:"omitempty,file"`
}

// Enabled reports whether TLS termination is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// WebSocketConfig configures framing limits.
type WebSocketConfig struct {
	// MaxMessageSize bounds one reassembled message in bytes.
	MaxMessageSize int64 `yaml:"max_message_size" mapstructure:"max_message_size" validate:"omitempty,min=125"`
}

// AppConfig configures the reference application.
type AppConfig struct {
	// StaticDir is the directory served under /static/. Empty disables
	// static file serving.
	StaticDir string `yaml:"static_dir" mapstructure:"static_dir" validate:"omitempty,dir"`

	// SSEInterval is the tick interval of the /events stream (e.g. "1s").
	SSEInterval string `yaml:"sse_interval" mapstructure:"sse_interval" validate:"omitempty,duration"`
}

// SetDefaults fills zero values with production defaults.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8000"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ReadHeaderTimeout == "" {
		c.Server.ReadHeaderTimeout = "30s"
	}
	if c.Server.DrainTimeout == "" {
		c.Server.DrainTimeout = "10s"
	}
	if c.Server.LifespanTimeout == "" {
		c.Server.LifespanTimeout = "30s"
	}
	if c.Server.MaxHeaderBytes == 0 {
		c.Server.MaxHeaderBytes = 64 << 10
	}
	if c.WebSocket.MaxMessageSize == 0 {
		c.WebSocket.MaxMessageSize = 16 << 20
	}
	if c.App.SSEInterval == "" {
		c.App.SSEInterval = "1s"
	}
}

// Duration parses a config duration field that has already passed
// validation; the zero value is returned for "" or "0".
func Duration(s string) time.Duration {
	if s == "" || s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
