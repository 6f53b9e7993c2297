// dittovfsd is the DittoVFS daemon. It serves configured mounts over a Unix
// control socket; the client subcommands talk to a running daemon.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/config"
	"github.com/marmos91/dittovfs/pkg/server"
	"github.com/spf13/pflag"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `DittoVFS - user-space virtual filesystem daemon

Usage:
  dittovfsd <command> [flags]

Daemon commands:
  start        Run the daemon in the foreground
  init         Write a sample configuration file
  version      Print the version

Client commands (talk to a running daemon):
  mounts       List mounts
  mount SPEC   Mount a backend, e.g. "local:root=/srv" or "mail"
  unmount ID   Unmount a mount by its descriptor
  ls ID PATH   List a directory
  stat ID PATH Print the attributes of a file
  cat ID PATH  Write a file's content to stdout

Run "dittovfsd <command> --help" for command flags.
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "start":
		return runStart(rest)
	case "init":
		return runInit(rest)
	case "version", "--version":
		fmt.Printf("dittovfsd %s\n", version)
		return nil
	case "help", "--help", "-h":
		fmt.Print(usage)
		return nil
	}

	if c, ok := clientCommands[cmd]; ok {
		return runClient(cmd, c, rest)
	}

	fmt.Fprint(os.Stderr, usage)
	return fmt.Errorf("unknown command %q", cmd)
}

func runStart(args []string) error {
	flags := pflag.NewFlagSet("start", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "config file (default: "+config.GetDefaultConfigPath()+")")
	logLevel := flags.String("log-level", "", "override logging.level (DEBUG, INFO, WARN, ERROR)")
	socket := flags.String("socket", "", "override control.socket_path")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *socket != "" {
		cfg.Control.SocketPath = *socket
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if err := configureLogging(cfg.Logging); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("DittoVFS %s starting", version)
	logger.Info("  Control socket: %s", cfg.Control.SocketPath)
	logger.Info("  Workers: %d", cfg.Dispatcher.Workers)
	if cfg.Settings.Path != "" {
		logger.Info("  Settings: %s", cfg.Settings.Path)
	} else {
		logger.Info("  Settings: in memory")
	}
	if cfg.Server.Metrics.Enabled {
		logger.Info("  Metrics: port %d", cfg.Server.Metrics.Port)
	}

	d, err := server.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	logger.Info("Daemon is running. Press Ctrl+C to stop.")
	if err := d.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runInit(args []string) error {
	flags := pflag.NewFlagSet("init", pflag.ContinueOnError)
	path := flags.StringP("config", "c", "", "where to write the config (default: "+config.GetDefaultConfigPath()+")")
	force := flags.BoolP("force", "f", false, "overwrite an existing file")
	if err := flags.Parse(args); err != nil {
		return err
	}

	target := *path
	if target == "" {
		var err error
		if target, err = config.InitConfig(*force); err != nil {
			return err
		}
	} else if err := config.InitConfigToPath(target, *force); err != nil {
		return err
	}

	fmt.Printf("Configuration written to %s\n", target)
	return nil
}

func configureLogging(cfg config.LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	return logger.SetOutput(cfg.Output)
}
