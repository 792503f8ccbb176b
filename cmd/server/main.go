package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/tutor-matching/internal/config"
	"github.com/garyjia/tutor-matching/internal/container"
	httpserver "github.com/garyjia/tutor-matching/internal/interfaces/http"
	"github.com/garyjia/tutor-matching/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.ToLoggerConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("Server exited with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("Server exited successfully")
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting tutor matching workflow service",
		zap.String("driver", cfg.Database.Driver),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("lark_enabled", cfg.Lark.Enabled))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := container.NewContainer(cfg.ToContainerConfig(), log)
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("start container: %w", err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Error("Container close failed", zap.Error(err))
		}
	}()

	srv := httpserver.NewServer(cfg.ToServerConfig(), c.Service(), c.Exporter(), c, logger.KV(log))

	// Start blocks until the signal context is cancelled
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	log.Info("Shutting down")
	return nil
}
