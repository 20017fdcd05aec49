package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harpou/ai-gateway/internal/application"
	"github.com/harpou/ai-gateway/internal/infrastructure/config"
	"github.com/harpou/ai-gateway/internal/infrastructure/logger"
)

const (
	appVersion = "1.0.0"
	appName    = "harpou-gateway"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   appName,
		Short: "Harpou AI Gateway: OpenAI-compatible LLM gateway with agentic orchestration",
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "server",
		Short: "Run the HTTP API server and periodic schedulers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRole("server", application.NewServerApp)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "worker",
		Short: "Run the task worker pool executing agentic orchestrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRole("worker", application.NewWorkerApp)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", appName, appVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runRole boots one role and blocks until a shutdown signal arrives.
func runRole(role string, build func(*config.Config, *zap.Logger) (*application.App, error)) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := logger.NewLogger(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputPath: "stdout",
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer log.Sync()

	log.Info("Starting Harpou AI Gateway",
		zap.String("role", role),
		zap.String("version", appVersion),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := build(cfg, log)
	if err != nil {
		log.Error("Failed to initialize application", zap.Error(err))
		return err
	}

	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start application", zap.Error(err))
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", zap.Error(err))
		return err
	}
	log.Info("Application stopped successfully")
	return nil
}
