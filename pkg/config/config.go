package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/dittovfs/pkg/rpc"
	"github.com/marmos91/dittovfs/pkg/settings"
	"github.com/spf13/viper"
)

// Config represents the complete DittoVFS daemon configuration.
//
// The daemon owns a job dispatcher, a set of mounts and a control socket
// clients talk to. Mounts listed here are created at startup; clients can
// add more at runtime over the control socket.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (DITTOVFS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server contains daemon-wide settings
	Server ServerConfig `mapstructure:"server"`

	// Control configures the Unix control socket
	Control rpc.Config `mapstructure:"control"`

	// Dispatcher configures job execution
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`

	// Settings configures the persisted settings store
	Settings settings.Config `mapstructure:"settings"`

	// Mounts are created at startup, in order
	Mounts []MountConfig `mapstructure:"mounts" validate:"dive"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig contains daemon-wide settings.
type ServerConfig struct {
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// MetricsConfig configures the metrics HTTP server.
type MetricsConfig struct {
	// Enabled turns on Prometheus metrics collection and the HTTP endpoint
	Enabled bool `mapstructure:"enabled"`

	// Port is the HTTP port for /metrics and /healthz
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// DispatcherConfig tunes the job dispatcher.
type DispatcherConfig struct {
	// Workers bounds concurrent blocking backend calls
	Workers int `mapstructure:"workers" validate:"min=0"`

	// MaxReadSize caps a single data channel read in bytes
	MaxReadSize int `mapstructure:"max_read_size" validate:"min=0"`
}

// MountConfig describes a mount created at startup.
//
// Options are decoded into the backend's own configuration type:
//
//	local: root, display_name, icon
//	mail:  maildir
type MountConfig struct {
	// Name identifies the mount in logs; it must be unique
	Name string `mapstructure:"name" validate:"required"`

	// Type selects the backend
	Type string `mapstructure:"type" validate:"required,oneof=local mail"`

	// Options are backend-specific settings
	Options map[string]any `mapstructure:"options"`
}

// Load loads configuration from file, environment variables, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (DITTOVFS_LOGGING_LEVEL, etc.)
//  2. Configuration file
//  3. Default values
//
// A missing configuration file is not an error; defaults are used.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables: DITTOVFS_CONTROL_SOCKET_PATH -> control.socket_path
	v.SetEnvPrefix("DITTOVFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only overrides keys viper already knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys are the scalar keys that may be set from the environment alone.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"server.shutdown_timeout",
	"server.metrics.enabled",
	"server.metrics.port",
	"control.socket_path",
	"control.max_message_size",
	"control.max_connections",
	"control.shutdown_timeout",
	"control.rate_limit.requests_per_second",
	"control.rate_limit.burst",
	"dispatcher.workers",
	"dispatcher.max_read_size",
	"settings.path",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/dittovfs
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittovfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittovfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a configuration file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}
