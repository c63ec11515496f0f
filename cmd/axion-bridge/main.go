package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dhenenjay/Axion-MCP/internal/bridge"
	"github.com/Dhenenjay/Axion-MCP/internal/config"
	"github.com/Dhenenjay/Axion-MCP/internal/logger"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("axion-bridge %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			fmt.Println("axion-bridge - relay MCP stdio to a remote axion-mcp HTTP server")
			fmt.Println()
			fmt.Println("Usage: axion-bridge [-config path] [-url server]")
			fmt.Println()
			fmt.Println("Environment variables:")
			fmt.Println("  AXION_SERVER_URL=http://localhost:3000    Server to relay to")
			fmt.Println("  AXION_BRIDGE_TIMEOUT=5m                   Per-message timeout")
			fmt.Println("  AXION_LOG_LEVEL=debug                     Log level (stderr)")
			return
		}
	}

	configPath := flag.String("config", "", "path to a YAML config file")
	serverURL := flag.String("url", "", "server URL, overrides AXION_SERVER_URL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "axion-bridge: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Bridge.ServerURL = *serverURL
	}

	log, err := logger.New(logger.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "axion-bridge: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bridge.New(bridge.Options{
		ServerURL: cfg.Bridge.ServerURL,
		Timeout:   cfg.Bridge.Timeout,
		Logger:    log,
	})
	log.Info().Str("endpoint", b.Endpoint()).Str("version", Version).Msg("bridge started")

	if err := b.Run(ctx, os.Stdin, os.Stdout); err != nil {
		log.Error().Err(err).Msg("bridge stopped")
		stop()
		os.Exit(1)
	}
}
