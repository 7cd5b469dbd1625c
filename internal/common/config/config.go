// Package config provides configuration management for perch.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/perchlabs/perch/internal/common/logger"
)

// Config holds all configuration sections for perch.
type Config struct {
	Gateway  GatewayConfig        `mapstructure:"gateway"`
	Identity IdentityConfig       `mapstructure:"identity"`
	Logging  logger.LoggingConfig `mapstructure:"logging"`
}

// GatewayConfig holds gateway connection configuration.
type GatewayConfig struct {
	// URL is the gateway WebSocket endpoint. A bare origin (no path) is
	// expanded into the standard candidate paths at connect time.
	URL string `mapstructure:"url"`

	// ClientID identifies this client to the gateway. Additional fallback
	// ids may be listed in ClientIDFallbacks and are tried on id collision.
	ClientID          string   `mapstructure:"clientId"`
	ClientIDFallbacks []string `mapstructure:"clientIdFallbacks"`

	Role   string   `mapstructure:"role"`
	Scopes []string `mapstructure:"scopes"`

	// Token and Password are the shared-secret credentials used when no
	// device token is cached (or as fallback when one is rejected).
	Token    string `mapstructure:"token"`
	Password string `mapstructure:"password"`

	// HandshakeDelayMs is how long to wait after the socket opens for a
	// server challenge before sending connect unprompted.
	HandshakeDelayMs int `mapstructure:"handshakeDelayMs"`

	// Reconnect backoff tuning.
	BackoffInitialMs int     `mapstructure:"backoffInitialMs"`
	BackoffFactor    float64 `mapstructure:"backoffFactor"`
	BackoffMaxMs     int     `mapstructure:"backoffMaxMs"`
}

// IdentityConfig holds local device identity storage configuration.
type IdentityConfig struct {
	// Dir is where the device keypair and cached auth tokens live.
	// Default: ~/.perch/identity
	Dir string `mapstructure:"dir"`
}

// HandshakeDelay returns the handshake debounce as a time.Duration.
func (g *GatewayConfig) HandshakeDelay() time.Duration {
	return time.Duration(g.HandshakeDelayMs) * time.Millisecond
}

// BackoffInitial returns the initial reconnect delay as a time.Duration.
func (g *GatewayConfig) BackoffInitial() time.Duration {
	return time.Duration(g.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the reconnect delay cap as a time.Duration.
func (g *GatewayConfig) BackoffMax() time.Duration {
	return time.Duration(g.BackoffMaxMs) * time.Millisecond
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Gateway defaults
	v.SetDefault("gateway.url", "ws://127.0.0.1:18789")
	v.SetDefault("gateway.clientId", "perch")
	v.SetDefault("gateway.clientIdFallbacks", []string{})
	v.SetDefault("gateway.role", "operator")
	v.SetDefault("gateway.scopes", []string{"operator.read", "operator.write"})
	v.SetDefault("gateway.token", "")
	v.SetDefault("gateway.password", "")
	v.SetDefault("gateway.handshakeDelayMs", 650)
	v.SetDefault("gateway.backoffInitialMs", 800)
	v.SetDefault("gateway.backoffFactor", 1.7)
	v.SetDefault("gateway.backoffMaxMs", 15000)

	// Identity defaults
	v.SetDefault("identity.dir", defaultIdentityDir())

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputPath", "stderr")
}

func defaultIdentityDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".perch/identity"
	}
	return filepath.Join(home, ".perch", "identity")
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix PERCH_ with snake_case naming.
// The config file is config.yaml in the current directory or ~/.perch/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PERCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not handle camelCase to SNAKE_CASE conversion,
	// so bind the keys whose env var naming differs from the config key.
	_ = v.BindEnv("gateway.clientId", "PERCH_GATEWAY_CLIENT_ID")
	_ = v.BindEnv("gateway.handshakeDelayMs", "PERCH_GATEWAY_HANDSHAKE_DELAY_MS")
	_ = v.BindEnv("gateway.backoffInitialMs", "PERCH_GATEWAY_BACKOFF_INITIAL_MS")
	_ = v.BindEnv("gateway.backoffMaxMs", "PERCH_GATEWAY_BACKOFF_MAX_MS")
	_ = v.BindEnv("logging.outputPath", "PERCH_LOGGING_OUTPUT_PATH")

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".perch"))
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are sane.
func validate(cfg *Config) error {
	var errs []string

	if cfg.Gateway.URL == "" {
		errs = append(errs, "gateway.url must be set")
	}
	if !strings.HasPrefix(cfg.Gateway.URL, "ws://") && !strings.HasPrefix(cfg.Gateway.URL, "wss://") {
		errs = append(errs, "gateway.url must be a ws:// or wss:// URL")
	}
	if cfg.Gateway.ClientID == "" {
		errs = append(errs, "gateway.clientId must be set")
	}
	if cfg.Gateway.Role == "" {
		errs = append(errs, "gateway.role must be set")
	}
	if cfg.Gateway.BackoffFactor < 1.0 {
		errs = append(errs, "gateway.backoffFactor must be >= 1.0")
	}
	if cfg.Gateway.BackoffInitialMs <= 0 || cfg.Gateway.BackoffMaxMs < cfg.Gateway.BackoffInitialMs {
		errs = append(errs, "gateway backoff bounds must satisfy 0 < initial <= max")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
