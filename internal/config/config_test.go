package config

import (
	"strings"
	"testing"
	"time"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.Addr != "127.0.0.1:8000" {
		t.Errorf("Server.Addr = %q, want 127.0.0.1:8000", cfg.Server.Addr)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("Server.LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Server.ReadHeaderTimeout != "30s" {
		t.Errorf("ReadHeaderTimeout = %q, want 30s", cfg.Server.ReadHeaderTimeout)
	}
	if cfg.Server.MaxHeaderBytes != 64<<10 {
		t.Errorf("MaxHeaderBytes = %d, want %d", cfg.Server.MaxHeaderBytes, 64<<10)
	}
	if cfg.WebSocket.MaxMessageSize != 16<<20 {
		t.Errorf("WebSocket.MaxMessageSize = %d, want %d", cfg.WebSocket.MaxMessageSize, 16<<20)
	}
	if cfg.App.SSEInterval != "1s" {
		t.Errorf("App.SSEInterval = %q, want 1s", cfg.App.SSEInterval)
	}
}

func TestConfig_SetDefaults_PreservesExisting(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.Server.Addr = "0.0.0.0:9000"
	cfg.Server.LogLevel = "debug"
	cfg.SetDefaults()

	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Server.Addr = %q, explicit value overwritten", cfg.Server.Addr)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("Server.LogLevel = %q, explicit value overwritten", cfg.Server.LogLevel)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		var cfg Config
		cfg.SetDefaults()
		return &cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"missing addr", func(c *Config) { c.Server.Addr = "" }, "required"},
		{"bad addr", func(c *Config) { c.Server.Addr = "not an addr" }, "host:port"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "loud" }, "one of"},
		{"bad duration", func(c *Config) { c.Server.DrainTimeout = "soon" }, "duration"},
		{"zero duration allowed", func(c *Config) { c.Server.ReadHeaderTimeout = "0" }, ""},
		{"tiny header limit", func(c *Config) { c.Server.MaxHeaderBytes = 100 }, "at least"},
		{"tiny ws message limit", func(c *Config) { c.WebSocket.MaxMessageSize = 10 }, "at least"},
		{"cert without key", func(c *Config) { c.Server.TLS.CertFile = "/dev/null" }, "together"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"30s", 30 * time.Second},
		{"1m30s", 90 * time.Second},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := Duration(tt.in); got != tt.want {
			t.Errorf("Duration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestTLSConfig_Enabled(t *testing.T) {
	t.Parallel()

	if (TLSConfig{}).Enabled() {
		t.Error("empty TLS config should not be enabled")
	}
	if !(TLSConfig{CertFile: "c", KeyFile: "k"}).Enabled() {
		t.Error("cert+key TLS config should be enabled")
	}
}
