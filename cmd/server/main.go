// Package main runs the recap API server: it loads configuration, opens and
// migrates the database, starts the job runner, and serves HTTP until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/phrazzld/recap-api/internal/config"
	"github.com/phrazzld/recap-api/internal/platform/database"
	"github.com/phrazzld/recap-api/internal/platform/gemini"
	"github.com/phrazzld/recap-api/internal/platform/logger"
	"github.com/phrazzld/recap-api/internal/redact"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited with error", "error", redact.Error(err))
		os.Exit(1)
	}
}

func run() error {
	// A .env file is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	log.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"database_driver", cfg.Database.Driver,
		"database_url", database.MaskURL(cfg.Database),
		"model", cfg.LLM.ModelName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.Migrate(ctx, db, cfg.Database.Driver, log); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := database.CheckSchema(ctx, db, cfg.Database.Driver, log); err != nil {
		_ = db.Close()
		return err
	}

	gen, err := gemini.NewGenerator(ctx, log.With("component", "llm_generator"), cfg.LLM)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize LLM generator: %w", err)
	}

	app, err := newApplication(ctx, cfg, log, db, gen)
	if err != nil {
		_ = db.Close()
		return err
	}

	return app.Run(ctx)
}
