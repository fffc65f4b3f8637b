package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rpattn/tabimport/internal/config"
	"github.com/rpattn/tabimport/internal/db"
	"github.com/rpattn/tabimport/internal/extract"
	"github.com/rpattn/tabimport/internal/importer"
	"github.com/rpattn/tabimport/internal/repository"
	"github.com/rpattn/tabimport/internal/server"
)

func main() {
	configPath := flag.String("config", "", "config file or directory")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger, closeLog := config.SetupLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		_ = closeLog()
		os.Exit(1)
	}
	_ = closeLog()
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setup database connection
	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Run migrations
	if err := db.RunMigrations(conn.Pool); err != nil {
		return err
	}

	store, err := repository.NewStore(conn.Pool)
	if err != nil {
		return err
	}
	runner := extract.NewRunner(logger, extract.DefaultExtractors()...)
	service := importer.NewService(store, nil, runner, logger, cfg.Import)

	return server.Run(ctx, server.New(service, cfg.Server, logger), logger)
}
