package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/dittovfs/pkg/rpc"
)

func TestApplyDefaults_Logging(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected default log level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output 'stdout', got %q", cfg.Logging.Output)
	}
}

func TestApplyDefaults_Server(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.Metrics.Port != 9090 {
		t.Errorf("Expected default metrics port 9090, got %d", cfg.Server.Metrics.Port)
	}
}

func TestApplyDefaults_Control(t *testing.T) {
	runtimeDir := t.TempDir()
	t.Setenv("XDG_RUNTIME_DIR", runtimeDir)

	cfg := &Config{}
	ApplyDefaults(cfg)

	want := filepath.Join(runtimeDir, "dittovfs", "control.sock")
	if cfg.Control.SocketPath != want {
		t.Errorf("Expected socket path %q, got %q", want, cfg.Control.SocketPath)
	}
	if cfg.Control.MaxMessageSize != rpc.DefaultMaxMessageSize {
		t.Errorf("Expected max message size %d, got %d", rpc.DefaultMaxMessageSize, cfg.Control.MaxMessageSize)
	}
	if cfg.Control.RateLimit.RequestsPerSecond != 0 || cfg.Control.RateLimit.Burst != 0 {
		t.Errorf("Expected rate limiting disabled by default, got %+v", cfg.Control.RateLimit)
	}
}

func TestApplyDefaults_SocketWithoutRuntimeDir(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "")

	path := DefaultSocketPath()
	if !filepath.IsAbs(path) {
		t.Errorf("Expected absolute socket path, got %q", path)
	}
	if filepath.Base(path) != "control.sock" {
		t.Errorf("Expected control.sock, got %q", filepath.Base(path))
	}
}

func TestApplyDefaults_Dispatcher(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Dispatcher.Workers < 4 {
		t.Errorf("Expected at least 4 workers, got %d", cfg.Dispatcher.Workers)
	}
	if cfg.Dispatcher.MaxReadSize != 1<<20 {
		t.Errorf("Expected max read size 1 MiB, got %d", cfg.Dispatcher.MaxReadSize)
	}
}

func TestApplyDefaults_Mounts(t *testing.T) {
	cfg := &Config{
		Mounts: []MountConfig{
			{Type: "local"},
			{Name: "inbox", Type: "mail"},
			{Type: "local"},
		},
	}
	ApplyDefaults(cfg)

	names := []string{cfg.Mounts[0].Name, cfg.Mounts[1].Name, cfg.Mounts[2].Name}
	want := []string{"local", "inbox", "local-2"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("mounts[%d]: expected name %q, got %q", i, want[i], names[i])
		}
		if cfg.Mounts[i].Options == nil {
			t.Errorf("mounts[%d]: expected options map to be initialized", i)
		}
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging: LoggingConfig{
			Level:  "debug",
			Format: "json",
			Output: "stderr",
		},
		Server: ServerConfig{
			ShutdownTimeout: 5 * time.Second,
			Metrics:         MetricsConfig{Enabled: true, Port: 9191},
		},
		Control: rpc.Config{
			SocketPath:     "/run/custom.sock",
			MaxMessageSize: 8192,
			RateLimit:      rpc.RateLimitConfig{RequestsPerSecond: 10, Burst: 3},
		},
		Dispatcher: DispatcherConfig{Workers: 2, MaxReadSize: 4096},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level normalized to 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Output != "stderr" {
		t.Errorf("Expected explicit logging values preserved, got %+v", cfg.Logging)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second || cfg.Server.Metrics.Port != 9191 {
		t.Errorf("Expected explicit server values preserved, got %+v", cfg.Server)
	}
	if cfg.Control.SocketPath != "/run/custom.sock" || cfg.Control.MaxMessageSize != 8192 {
		t.Errorf("Expected explicit control values preserved, got %+v", cfg.Control)
	}
	if cfg.Control.RateLimit.Burst != 3 {
		t.Errorf("Expected explicit burst preserved, got %d", cfg.Control.RateLimit.Burst)
	}
	if cfg.Dispatcher.Workers != 2 || cfg.Dispatcher.MaxReadSize != 4096 {
		t.Errorf("Expected explicit dispatcher values preserved, got %+v", cfg.Dispatcher)
	}
}

func TestGetDefaultConfig_IsValid(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
}

func TestDefaultMaildir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if got := DefaultMaildir(); got != filepath.Join(home, "Maildir") {
		t.Errorf("Expected %q, got %q", filepath.Join(home, "Maildir"), got)
	}
}
