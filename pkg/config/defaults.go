package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/dittovfs/pkg/rpc"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", false, nil) are replaced with defaults
//   - Explicit values are preserved
//   - Backend-specific defaults are handled by the backends at mount time
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyControlDefaults(&cfg.Control)
	applyDispatcherDefaults(&cfg.Dispatcher)
	applyMountDefaults(cfg.Mounts)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyServerDefaults sets server defaults.
func applyServerDefaults(cfg *ServerConfig) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
}

// applyControlDefaults sets control socket defaults.
func applyControlDefaults(cfg *rpc.Config) {
	if cfg.SocketPath == "" {
		cfg.SocketPath = DefaultSocketPath()
	}
	if cfg.MaxMessageSize == 0 {
		cfg.MaxMessageSize = rpc.DefaultMaxMessageSize
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = cfg.RateLimit.RequestsPerSecond * 2
	}
}

// applyDispatcherDefaults sets dispatcher defaults.
func applyDispatcherDefaults(cfg *DispatcherConfig) {
	if cfg.Workers == 0 {
		cfg.Workers = max(runtime.NumCPU(), 4)
	}
	if cfg.MaxReadSize == 0 {
		cfg.MaxReadSize = 1 << 20
	}
}

// applyMountDefaults names unnamed mounts after their type and position.
func applyMountDefaults(mounts []MountConfig) {
	for i := range mounts {
		if mounts[i].Options == nil {
			mounts[i].Options = make(map[string]any)
		}
		if mounts[i].Name == "" && mounts[i].Type != "" {
			mounts[i].Name = mounts[i].Type
			if i > 0 {
				mounts[i].Name = mounts[i].Type + "-" + strconv.Itoa(i)
			}
		}
	}
}

// DefaultSocketPath returns the control socket location.
//
// Uses $XDG_RUNTIME_DIR/dittovfs/control.sock when the runtime directory is
// set, otherwise a per-user directory under the system temp dir.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "dittovfs", "control.sock")
	}
	return filepath.Join(os.TempDir(), "dittovfs-"+strconv.Itoa(os.Getuid()), "control.sock")
}

// DefaultMaildir returns the maildir used when neither the mount options
// nor the settings store name one.
func DefaultMaildir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "Maildir"
	}
	return filepath.Join(home, "Maildir")
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	cfg := &Config{
		Mounts: []MountConfig{
			{
				Name: "home",
				Type: "local",
				Options: map[string]any{
					"root": home,
				},
			},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
