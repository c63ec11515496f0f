package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Dhenenjay/Axion-MCP/internal/catalog"
	"github.com/Dhenenjay/Axion-MCP/internal/config"
	"github.com/Dhenenjay/Axion-MCP/internal/earthengine"
	"github.com/Dhenenjay/Axion-MCP/internal/httpapi"
	"github.com/Dhenenjay/Axion-MCP/internal/logger"
	"github.com/Dhenenjay/Axion-MCP/internal/server"
	"github.com/Dhenenjay/Axion-MCP/internal/store"
	"github.com/Dhenenjay/Axion-MCP/internal/vis"
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
			fmt.Printf("axion-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			usage()
			return
		}
	}

	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Usage = usage
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "axion-mcp: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("axion-mcp - MCP server for Google Earth Engine")
	fmt.Println()
	fmt.Println("Usage: axion-mcp [-config path]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -config path     YAML config file (optional)")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  AXION_TRANSPORT=stdio|http         Transport (default stdio)")
	fmt.Println("  AXION_HTTP_ADDR=:3000              HTTP listen address")
	fmt.Println("  AXION_LOG_LEVEL=debug              Log level")
	fmt.Println("  REDIS_URL=redis://host:6379/0      Durable session store")
	fmt.Println("  GEE_SA_KEY / GEE_SA_KEY_PATH       Service account key (JSON or path)")
	fmt.Println("  GEE_PROJECT_ID                     Cloud project for computations")
	fmt.Println()
	fmt.Println("Logs go to stderr; with the stdio transport, stdout carries MCP messages.")
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Options{
		Level:    cfg.Logging.Level,
		Format:   cfg.Logging.Format,
		FilePath: cfg.Logging.File,
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("version", Version).
		Str("commit", GitCommit).
		Str("transport", cfg.Server.Transport).
		Msg("starting axion-mcp")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	normalizer, err := newNormalizer(cfg.Vis)
	if err != nil {
		return err
	}

	st := store.Open(ctx, cfg.Store, log)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.Warn().Err(err).Msg("store did not close cleanly")
		}
	}()

	ee := earthengine.NewClient(ctx, earthengine.Options{
		BaseURL:         cfg.EarthEngine.BaseURL,
		ProjectID:       cfg.EarthEngine.ProjectID,
		CredentialsJSON: cfg.EarthEngine.CredentialsJSON,
		CredentialsFile: cfg.EarthEngine.CredentialsFile,
		Timeout:         cfg.EarthEngine.RequestTimeout,
		Logger:          log,
	})

	srv := server.New(server.Options{
		Facade:      store.NewFacade(st, log),
		EarthEngine: ee,
		Normalizer:  normalizer,
		Catalog:     catalog.Builtin(),
		Logger:      log,
		BaseURL:     cfg.Server.BaseURL,
		Version:     Version,
	})

	g, gctx := errgroup.WithContext(ctx)
	switch cfg.Server.Transport {
	case "http":
		api := httpapi.New(srv, log)
		g.Go(func() error { return api.Serve(gctx, cfg.Server.HTTPAddr) })
	default:
		g.Go(func() error {
			// stdin closing ends the session.
			defer stop()
			return srv.Run(gctx, os.Stdin, os.Stdout)
		})
	}

	err = g.Wait()
	log.Info().Msg("axion-mcp stopped")
	return err
}

func newNormalizer(cfg config.VisConfig) (*vis.Normalizer, error) {
	if cfg.PresetsPath == "" {
		return vis.NewNormalizer(nil), nil
	}
	presets, err := vis.LoadPresets(cfg.PresetsPath)
	if err != nil {
		return nil, fmt.Errorf("loading vis presets: %w", err)
	}
	return vis.NewNormalizer(presets), nil
}
