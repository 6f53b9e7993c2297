package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoVFS Configuration File
#
# Values can be overridden with DITTOVFS_* environment variables, for
# example DITTOVFS_LOGGING_LEVEL=DEBUG or DITTOVFS_CONTROL_SOCKET_PATH.

`

// InitConfig writes a sample configuration to the default location and
// returns its path. An existing file is only replaced when force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a sample configuration to path, creating parent
// directories. An existing file is only replaced when force is set.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a comment above every
// key. Keys use the mapstructure names Load reads back.
func generateYAMLWithComments(cfg *Config) (string, error) {
	b := &nodeBuilder{}

	mounts := &yaml.Node{Kind: yaml.SequenceNode}
	for _, m := range cfg.Mounts {
		mounts.Content = append(mounts.Content, b.mapping(
			b.field("name", "Unique mount name, used in logs", m.Name),
			b.field("type", "Backend type: local or mail", m.Type),
			b.field("options", "Backend options (local: root, display_name, icon; mail: maildir)", m.Options),
		))
	}

	doc := b.mapping(
		b.section("logging", "Logging configuration",
			b.field("level", "Minimum level: DEBUG, INFO, WARN, ERROR", cfg.Logging.Level),
			b.field("format", "Output format: text or json", cfg.Logging.Format),
			b.field("output", "stdout, stderr, or a file path", cfg.Logging.Output),
		),
		b.section("server", "Daemon settings",
			b.field("shutdown_timeout", "Maximum time to wait for graceful shutdown", cfg.Server.ShutdownTimeout),
			b.section("metrics", "Prometheus metrics and health endpoint",
				b.field("enabled", "Serve /metrics and /healthz", cfg.Server.Metrics.Enabled),
				b.field("port", "HTTP port", cfg.Server.Metrics.Port),
			),
		),
		b.section("control", "Control socket clients connect to",
			b.field("socket_path", "Unix socket path", cfg.Control.SocketPath),
			b.field("max_message_size", "Largest control message in bytes", cfg.Control.MaxMessageSize),
			b.field("max_connections", "Concurrent client limit (0 = unlimited)", cfg.Control.MaxConnections),
			b.field("shutdown_timeout", "Time allowed for clients to drain on shutdown", cfg.Control.ShutdownTimeout),
			b.section("rate_limit", "Request admission (requests_per_second 0 = disabled)",
				b.field("requests_per_second", "Sustained request rate", cfg.Control.RateLimit.RequestsPerSecond),
				b.field("burst", "Burst size", cfg.Control.RateLimit.Burst),
			),
		),
		b.section("dispatcher", "Job execution",
			b.field("workers", "Concurrent blocking backend calls", cfg.Dispatcher.Workers),
			b.field("max_read_size", "Largest single data channel read in bytes", cfg.Dispatcher.MaxReadSize),
		),
		b.section("settings", "Persisted settings (empty path keeps them in memory)",
			b.field("path", "BadgerDB directory", cfg.Settings.Path),
		),
		[2]*yaml.Node{b.key("mounts", "Mounts created at startup"), mounts},
	)
	if b.err != nil {
		return "", fmt.Errorf("failed to encode config: %w", b.err)
	}

	out, err := yaml.Marshal(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{doc}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return configHeader + string(out), nil
}

// nodeBuilder assembles a yaml.Node tree, keeping the first encoding error.
type nodeBuilder struct {
	err error
}

func (b *nodeBuilder) key(name, comment string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: name, HeadComment: comment}
}

func (b *nodeBuilder) field(name, comment string, value any) [2]*yaml.Node {
	v := &yaml.Node{}
	if err := v.Encode(value); err != nil && b.err == nil {
		b.err = fmt.Errorf("%s: %w", name, err)
	}
	return [2]*yaml.Node{b.key(name, comment), v}
}

func (b *nodeBuilder) section(name, comment string, fields ...[2]*yaml.Node) [2]*yaml.Node {
	return [2]*yaml.Node{b.key(name, comment), b.mapping(fields...)}
}

func (b *nodeBuilder) mapping(fields ...[2]*yaml.Node) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range fields {
		n.Content = append(n.Content, f[0], f[1])
	}
	return n
}
