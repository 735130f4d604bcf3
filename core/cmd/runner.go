// Package cmd runs a bot process: config loading, bootstrap, signal
// handling, and logger shutdown.
package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"botkit/core/bootstrap"
	coreconfig "botkit/core/config"
	"botkit/core/logger"
	coretelegram "botkit/core/telegram"

	"log/slog"
)

// Options describe how to load configuration, select storage, and register routes.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	// Storage builds backend options from the loaded config; nil selects
	// the in-memory driver.
	Storage func(cfg *coreconfig.Config) bootstrap.StorageOptions

	// RegisterRoutes binds the bot's handlers before start.
	RegisterRoutes func(bot *coretelegram.Bot) error

	ShutdownLogger func() error
}

// Run loads configuration, bootstraps the bot, and runs it until a signal arrives.
func Run(opts Options) error {
	if opts.RegisterRoutes == nil {
		return fmt.Errorf("cmd: RegisterRoutes is required")
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}
	if cfgPath == "" {
		return fmt.Errorf("cmd: config path not provided via %s or DefaultConfigPath", env)
	}

	log.Printf("loading config: %s", cfgPath)
	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	var storageOpts bootstrap.StorageOptions
	if opts.Storage != nil {
		storageOpts = opts.Storage(cfg)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	startedAt := time.Now()
	result, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:  cfg,
		Storage: storageOpts,
	})
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()
	defer func() {
		if err := result.Store.Close(context.Background()); err != nil {
			log.Printf("storage close error: %v", err)
		}
	}()

	if err := opts.RegisterRoutes(result.Bot); err != nil {
		return fmt.Errorf("cmd: route registration failed: %w", err)
	}

	logger.L.With("component", "app").Info("app ready",
		slog.String("event", "ready"),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	err = result.Bot.Start(ctx)

	logger.L.With("component", "app").Info("shutting down...",
		slog.String("event", "shutdown"),
	)
	return err
}
