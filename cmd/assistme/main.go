package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ferro-labs/assistme"
	"github.com/ferro-labs/assistme/internal/logging"
	"github.com/ferro-labs/assistme/internal/version"

	// Register built-in plugins so they can be loaded from config.
	_ "github.com/ferro-labs/assistme/internal/plugins/logger"
	_ "github.com/ferro-labs/assistme/internal/plugins/maxtoken"
	_ "github.com/ferro-labs/assistme/internal/plugins/wordfilter"
)

func main() {
	if err := run(); err != nil {
		logging.Logger.Error("assistme exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal in production.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	logging.Setup(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	log := logging.Logger

	cfg, err := loadConfig(os.Getenv("ASSISTME_CONFIG"), os.Getenv)
	if err != nil {
		return err
	}

	a, err := assistme.New(cfg)
	if err != nil {
		return fmt.Errorf("creating assistant: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close failed", "error", err)
		}
	}()
	a.AddHook(func(ctx context.Context, subject string, data map[string]interface{}) {
		logging.FromContext(ctx).Debug("chat event", "subject", subject, "data", data)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.StartSweepers(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      newRouter(a),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info("shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown error", "error", err)
		}
	}()

	log.Info("assistme listening",
		"addr", srv.Addr,
		"version", version.Short(),
		"providers", a.Health(ctx).Providers,
		"default_model", cfg.DefaultModel,
		"plugins", a.Plugins(),
	)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info("server stopped")
	return nil
}

// loadConfig builds the runtime config: defaults, then the optional config
// file, then environment overrides.
func loadConfig(path string, getenv func(string) string) (assistme.Config, error) {
	cfg := assistme.DefaultConfig()
	if path != "" {
		loaded, err := assistme.LoadConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("loading config: %w", err)
		}
		cfg = *loaded
	}
	if err := assistme.ApplyEnv(&cfg, getenv); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	if err := assistme.ValidateConfig(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
