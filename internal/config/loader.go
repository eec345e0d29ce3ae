package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, gatewire.yaml/.yml is searched in
// standard locations. The search requires an explicit YAML extension so
// the binary itself (same base name, no extension) is never matched.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file in any standard location. Set name/type without
		// search paths so ReadInConfig returns ConfigFileNotFoundError,
		// which callers handle gracefully (env-vars-only mode).
		viper.SetConfigName("gatewire")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: GATEWIRE_SERVER_ADDR etc.
	viper.SetEnvPrefix("GATEWIRE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for gatewire.yaml or .yml.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".gatewire"),
		"/etc/gatewire",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "gatewire"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds all nested config keys for environment variable
// overrides. Example: GATEWIRE_SERVER_ADDR overrides server.addr.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.addr")
	_ = viper.BindEnv("server.metrics_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.root_path")
	_ = viper.BindEnv("server.read_header_timeout")
	_ = viper.BindEnv("server.drain_timeout")
	_ = viper.BindEnv("server.lifespan_timeout")
	_ = viper.BindEnv("server.max_header_bytes")
	_ = viper.BindEnv("server.reuse_port")
	_ = viper.BindEnv("server.tls.cert_file")
	_ = viper.BindEnv("server.tls.key_file")

	_ = viper.BindEnv("websocket.max_message_size")

	_ = viper.BindEnv("app.static_dir")
	_ = viper.BindEnv("app.sse_interval")

	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides
// and defaults, and validates the result.
func LoadConfig() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found: continue with env vars and defaults.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path of the loaded configuration file, or ""
// when running from env vars and defaults only.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
