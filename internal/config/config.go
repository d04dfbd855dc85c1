// Package config loads and validates the broker's static configuration:
// listener addresses, TLS identity, JWT verification key, VSS catalogue
// files to preload, and the logging/telemetry/metrics sub-configs.
// Uses viper + mapstructure + struct tags, YAML/TOML + env var overrides,
// and go-playground/validator, trimmed to the surface spec.md §6 calls
// the "adapter contract" rather than the core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sdv-broker/databroker/internal/telemetry"
)

// Config is the databroker server's static configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DATABROKER_*)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry telemetry.Config `mapstructure:"telemetry" yaml:"telemetry"`

	// Profiling controls Pyroscope continuous profiling.
	Profiling telemetry.ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// GRPC configures the two kuksa.val gRPC service variants.
	GRPC GRPCConfig `mapstructure:"grpc" yaml:"grpc"`

	// WebSocket configures the optional WebSocket adapter.
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`

	// Metrics contains Prometheus metrics server configuration.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// TLS configures the optional server TLS identity shared by every
	// listener.
	TLS TLSConfig `mapstructure:"tls" yaml:"tls"`

	// Auth configures JWT bearer-token verification.
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`

	// Catalogue lists VSS signal definition files to preload at startup.
	Catalogue []string `mapstructure:"catalogue" yaml:"catalogue"`
}

// LoggingConfig controls the package-level slog logger (internal/logger).
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR" yaml:"level"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=text json" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// GRPCConfig binds addresses for the kuksa.val.v1 and kuksa.val.v2
// service variants (spec.md §6).
type GRPCConfig struct {
	V1Address string `mapstructure:"v1_address" validate:"omitempty,hostname_port" yaml:"v1_address"`
	V2Address string `mapstructure:"v2_address" validate:"required,hostname_port" yaml:"v2_address"`
}

// WebSocketConfig binds the optional WebSocket adapter.
type WebSocketConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" validate:"required_if=Enabled true" yaml:"address"`
}

// MetricsConfig binds the Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address"`
}

// TLSConfig is the optional shared server TLS identity.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	CertFile string `mapstructure:"cert_file" validate:"required_if=Enabled true" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" validate:"required_if=Enabled true" yaml:"key_file"`
}

// AuthConfig is the optional JWT verification key; when Enabled is false
// every caller is granted permission.AllowAll (useful for local
// development, matching the permissive defaults conventional for
// non-production profiles).
type AuthConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
	JWTPublicKeyFile string `mapstructure:"jwt_public_key_file" validate:"required_if=Enabled true" yaml:"jwt_public_key_file"`
}

// Load loads configuration from file, environment, and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	// Register every default as a viper key so AutomaticEnv can override
	// it even when the configuration file does not set it or is absent.
	if raw, err := yaml.Marshal(cfg); err == nil {
		var defaults map[string]interface{}
		if err := yaml.Unmarshal(raw, &defaults); err == nil {
			for key, val := range defaults {
				v.SetDefault(key, val)
			}
		}
	}
	if err := v.Unmarshal(cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to path in YAML, respecting the struct's yaml tags.
func Save(cfg *Config, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var structValidator = validator.New()

// Validate runs go-playground/validator's struct-tag checks against cfg.
func Validate(cfg *Config) error {
	return structValidator.Struct(cfg)
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DATABROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(_ reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "databroker")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "databroker")
	}
	return "."
}

func defaultConfig() *Config {
	return &Config{
		Logging:         LoggingConfig{Level: "INFO", Format: "text", Output: "stdout"},
		Telemetry:       telemetry.Config{},
		ShutdownTimeout: 10 * time.Second,
		GRPC:            GRPCConfig{V1Address: "0.0.0.0:55556", V2Address: "0.0.0.0:55555"},
		WebSocket:       WebSocketConfig{Enabled: false, Address: "0.0.0.0:8090"},
		Metrics:         MetricsConfig{Enabled: true, Address: "0.0.0.0:9396"},
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.GRPC.V2Address == "" {
		cfg.GRPC.V2Address = "0.0.0.0:55555"
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "0.0.0.0:9396"
	}
}
