// Package cli provides common CLI initialization utilities shared by
// the conti subcommands.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"conti/internal/config"
	"conti/internal/events"
	"conti/internal/log"
	"conti/internal/storage"
)

// SetupLogger initializes structured logging with default settings.
// Returns the configured logger and sets it as the default logger.
func SetupLogger() *log.Logger {
	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitStore opens the SQLite ledger store, running pending migrations.
// Returns the store or exits the process on failure.
func InitStore(logger *log.Logger, cfg *config.Config) *storage.SQLiteStore {
	store, err := storage.NewSQLiteStore(cfg.SQLiteDBPath, cfg.DBBusyTimeout)
	if err != nil {
		logger.Error("Failed to initialize SQLite store", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	return store
}

// InitPublisher connects the AMQP event publisher when an AMQP URL is
// configured. Returns nil when publishing is disabled; a broker that
// cannot be reached is fatal, since silently dropping events would be
// worse than refusing to start.
func InitPublisher(logger *log.Logger, cfg *config.Config) *events.Publisher {
	if cfg.AMQPURL == "" {
		return nil
	}
	pub, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect AMQP publisher", "error", err, "exchange", cfg.AMQPExchange)
		os.Exit(1)
	}
	return pub
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
