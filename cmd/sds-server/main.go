// Package main provides the entry point for the SDS core server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/bootstrap"
	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/engines/auth"
	"github.com/sds-platform/sds-core/internal/engines/rbac"
	"github.com/sds-platform/sds-core/internal/engines/settings"
	"github.com/sds-platform/sds-core/internal/engines/signals"
	"github.com/sds-platform/sds-core/internal/engines/users"
	"github.com/sds-platform/sds-core/internal/httpserver"
	"github.com/sds-platform/sds-core/internal/maintenance"
	"github.com/sds-platform/sds-core/internal/notify"
	"github.com/sds-platform/sds-core/internal/providers"
	"github.com/sds-platform/sds-core/internal/store/postgres"
	"github.com/sds-platform/sds-core/internal/token"
	"github.com/sds-platform/sds-core/pkg/healthcheck"
	"github.com/sds-platform/sds-core/pkg/mqtt"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	skipMigrations := flag.Bool("skip-migrations", false, "Do not apply schema migrations on startup")
	sweepInterval := flag.Duration("sweep-interval", time.Hour, "Interval between maintenance sweeps")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := createLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	databaseURL, err := bootstrap.ResolveDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to resolve database credentials", zap.Error(err))
	}
	cfg.DatabaseURL = databaseURL

	logger.Info("Starting SDS server",
		zap.String("listen_address", cfg.ListenAddress),
		zap.String("environment", cfg.Environment),
		zap.String("database_url", maskPassword(databaseURL)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.Connect(ctx, databaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if !*skipMigrations {
		runner := bootstrap.NewMigrationRunner(pool, logger)
		if err := runner.Run(ctx); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}
	}

	st := postgres.New(pool, logger)
	recorder := audit.NewRecorder(st.Audit(), logger)

	tokens, err := token.NewService(cfg.JWTSecretKey, cfg.JWTRefreshSecretKey,
		cfg.AccessTTL(), cfg.RefreshTTL(), logger)
	if err != nil {
		logger.Fatal("Failed to create token service", zap.Error(err))
	}

	// Event bus is optional; nil publisher means email-only notification.
	var publisher notify.Publisher
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.NewClient(&mqtt.Config{
			BrokerURL:     cfg.MQTT.BrokerURL,
			ClientID:      cfg.MQTT.ClientID,
			Username:      cfg.MQTT.Username,
			Password:      cfg.MQTT.Password,
			AutoReconnect: true,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to create MQTT client", zap.Error(err))
		}
		if err := mqttClient.Connect(); err != nil {
			logger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		defer mqttClient.Disconnect()
		publisher = notify.NewEventPublisher(mqttClient, "sds-server", logger)
	}

	backend, err := notify.NewBackend(cfg.Email)
	if err != nil {
		logger.Fatal("Failed to create email backend", zap.Error(err))
	}
	if backend == nil {
		logger.Warn("Email backend not configured, notifications limited to the event bus")
	}
	dispatcher := notify.NewDispatcher(backend, publisher, cfg.Email.CoordinatorAddr, logger)

	factory := providers.NewFactory(cfg, logger)
	authSvc := auth.NewService(st, tokens, factory, recorder, dispatcher, cfg, logger)
	usersSvc := users.NewService(st, recorder, cfg, logger)
	rbacSvc := rbac.NewService(st, recorder, logger)
	signalsSvc := signals.NewService(st, recorder, dispatcher, logger)
	settingsSvc := settings.NewService(st, recorder, logger)

	if err := rbacSvc.Seed(ctx); err != nil {
		logger.Fatal("Failed to seed roles and permissions", zap.Error(err))
	}

	health := healthcheck.NewEngine(logger, 30*time.Second)
	health.Register(healthcheck.Named("database", func(ctx context.Context) *healthcheck.Result {
		r := &healthcheck.Result{ComponentName: "database", Timestamp: time.Now()}
		if err := pool.Ping(ctx); err != nil {
			r.Status = healthcheck.StatusUnhealthy
			r.Message = err.Error()
		} else {
			r.Status = healthcheck.StatusHealthy
		}
		return r
	}))
	if mqttClient != nil {
		health.Register(healthcheck.Named("broker", func(ctx context.Context) *healthcheck.Result {
			r := &healthcheck.Result{ComponentName: "broker", Timestamp: time.Now()}
			if mqttClient.IsConnected() {
				r.Status = healthcheck.StatusHealthy
			} else {
				// Auto-reconnect is on, so a gap is degraded rather
				// than fatal.
				r.Status = healthcheck.StatusDegraded
				r.Message = "not connected"
			}
			return r
		}))

		reporter := healthcheck.NewReporter(health, func(ctx context.Context, result *healthcheck.AggregatedResult) error {
			msg, err := mqtt.NewMessage(mqtt.MessageTypeHealth, "sds-server", result)
			if err != nil {
				return err
			}
			return mqttClient.PublishJSON(mqtt.HealthTopic("sds-server"), 0, true, msg)
		}, logger)
		go reporter.StartReporting(ctx, 30*time.Second)
	}

	sweeper := maintenance.NewSweeper(st, cfg, logger)
	sweeper.UseSettings(settingsSvc)
	go func() {
		if err := sweeper.Run(ctx, *sweepInterval); err != nil && ctx.Err() == nil {
			logger.Error("Maintenance sweeper stopped", zap.Error(err))
		}
	}()

	server := httpserver.NewServer(cfg, httpserver.Engines{
		Auth:     authSvc,
		Users:    usersSvc,
		RBAC:     rbacSvc,
		Signals:  signalsSvc,
		Settings: settingsSvc,
	}, recorder, health, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
		cancel()
		if err := <-errCh; err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
			os.Exit(1)
		}
	case err := <-errCh:
		if err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}

	logger.Info("SDS server stopped")
}

// createLogger creates a zap logger with the specified log level.
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

// maskPassword hides the password component of a connection URL for logging.
func maskPassword(dbURL string) string {
	u, err := url.Parse(dbURL)
	if err != nil || u.User == nil {
		return dbURL
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
