// Package main provides a one-shot maintenance run for cron scheduling:
// expires stale sessions, purges invalid ones past retention and clears
// expired password reset tokens.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/bootstrap"
	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/engines/settings"
	"github.com/sds-platform/sds-core/internal/maintenance"
	"github.com/sds-platform/sds-core/internal/store/postgres"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall run timeout")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger, err := createLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	databaseURL, err := bootstrap.ResolveDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to resolve database credentials", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, databaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	st := postgres.New(pool, logger)
	sweeper := maintenance.NewSweeper(st, cfg, logger)
	sweeper.UseSettings(settings.NewService(st, audit.NewRecorder(st.Audit(), logger), logger))
	report, err := sweeper.RunOnce(ctx)
	if err != nil {
		logger.Fatal("Maintenance run failed", zap.Error(err))
	}

	logger.Info("Maintenance run completed",
		zap.Int64("sessions_expired", report.SessionsExpired),
		zap.Int64("sessions_deleted", report.SessionsDeleted),
		zap.Int64("reset_tokens_cleared", report.TokensCleared))
}

func createLogger(level string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info", "":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
	return config.Build()
}
