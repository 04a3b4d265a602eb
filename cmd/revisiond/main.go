// revisiond - automatic file revision daemon
//
//	revisiond run       Run the daemon in the foreground
//	revisiond status    Show daemon status over the control socket
//	revisiond version   Print version information
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"revisiond/internal/config"
	"revisiond/internal/engine"
	"revisiond/internal/ipc"
	"revisiond/internal/logging"
)

var version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun()
	case "status":
		cmdStatus()
	case "version", "-v", "--version":
		fmt.Printf("revisiond %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`revisiond - Automatic File Revision Daemon

USAGE:
    revisiond <command> [options]

COMMANDS:
    run         Run the daemon in the foreground
    status      Show status of a running daemon
    version     Print version information
    help        Show this help message

The daemon watches registered files and directories. When a watched
file stops changing for the configured quiet period, a timestamped
copy of it is placed in the target's revision directory. Identical
content is never copied twice in a row.

Targets are managed at runtime with revisionctl:
    revisionctl add ~/thesis/draft.md ~/thesis/.revisions
    revisionctl list

Configuration is read from config.toml in the data directory
(default ~/.revisiond, override with REVISIOND_DATA_DIR).`)
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	logLevel := fs.String("log-level", "", "Override log level (debug, info, warn, error)")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing directories: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()
	logging.SetDefault(log)

	eng, err := engine.New(cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	eng.Start()

	var server *ipc.Server
	if cfg.IPC.Enabled {
		server = ipc.NewServer(ipc.ServerConfig{
			SocketPath:   cfg.IPC.SocketPath,
			Version:      version,
			ReadTimeout:  time.Duration(cfg.IPC.TimeoutSec) * time.Second,
			WriteTimeout: time.Duration(cfg.IPC.TimeoutSec) * time.Second,
		}, newHandler(eng, version), log)
		if err := server.Start(); err != nil {
			log.Error("control socket failed", "error", err)
			eng.Stop()
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	log.Info("revisiond started", "version", version, "pid", os.Getpid())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("shutting down", "signal", sig.String())

	if server != nil {
		server.Stop()
	}
	eng.Stop()
}

func cmdStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	fs.Parse(os.Args[2:])

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	client := ipc.NewClient(ipc.DefaultClientConfig(cfg.IPC.SocketPath))
	if err := client.Connect(); err != nil {
		fmt.Println("revisiond: not running")
		os.Exit(1)
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("revisiond: running")
	fmt.Printf("  Version:   %s\n", status.Version)
	fmt.Printf("  Started:   %s\n", status.StartedAt.Format(time.RFC3339))
	fmt.Printf("  Uptime:    %s\n", status.Uptime.Round(time.Second))
	fmt.Printf("  Targets:   %d\n", status.Targets)
	fmt.Printf("  Watches:   %d\n", status.Watches)
	fmt.Printf("  Pending:   %d\n", status.Pending)
	fmt.Printf("  Revisions: %d\n", status.Revisions)
	if len(status.LastErrors) > 0 {
		fmt.Println("  Recent errors:")
		for path, msg := range status.LastErrors {
			fmt.Printf("    %s: %s\n", path, msg)
		}
	}
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	return logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Component:  "revisiond",
	})
}
