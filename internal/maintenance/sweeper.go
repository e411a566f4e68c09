// Package maintenance runs the periodic housekeeping jobs: expired-session
// invalidation, retention cleanup and reset-token expiry.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/engines/settings"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

// Report summarizes one sweep.
type Report struct {
	SessionsExpired int64 `json:"sessions_expired"`
	SessionsDeleted int64 `json:"sessions_deleted"`
	TokensCleared   int64 `json:"tokens_cleared"`
}

// Sweeper executes the housekeeping jobs.
type Sweeper struct {
	store    store.Store
	cfg      *config.Config
	settings *settings.Service
	logger   *zap.Logger
	now      func() time.Time
}

// NewSweeper creates a sweeper.
func NewSweeper(st store.Store, cfg *config.Config, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:  st,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "maintenance")),
		now:    time.Now,
	}
}

// UseSettings makes the sweeper honor runtime overrides from
// configuracion_sistema: session_retention_days and maintenance_paused.
func (s *Sweeper) UseSettings(sv *settings.Service) {
	s.settings = sv
}

// retention resolves the session retention horizon, preferring the stored
// override over the environment default.
func (s *Sweeper) retention(ctx context.Context) time.Duration {
	if s.settings != nil {
		if days := s.settings.Int(ctx, settings.KeySessionRetentionDays, 0); days > 0 {
			return time.Duration(days) * 24 * time.Hour
		}
	}
	return s.cfg.SessionRetention()
}

// SweepSessions marks sessions past their access expiry as invalid and
// hard-deletes invalid sessions past the retention horizon.
func (s *Sweeper) SweepSessions(ctx context.Context) (expired, deleted int64, err error) {
	now := s.now()
	expired, err = s.store.Sessions().MarkExpired(ctx, now)
	if err != nil {
		return 0, 0, fmt.Errorf("marking expired sessions: %w", err)
	}

	cutoff := now.Add(-s.retention(ctx))
	deleted, err = s.store.Sessions().DeleteInvalidBefore(ctx, cutoff)
	if err != nil {
		return expired, 0, fmt.Errorf("deleting retained sessions: %w", err)
	}
	return expired, deleted, nil
}

// SweepResetTokens clears expired password-reset tokens.
func (s *Sweeper) SweepResetTokens(ctx context.Context) (int64, error) {
	n, err := s.store.Users().ClearExpiredResetTokens(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("clearing reset tokens: %w", err)
	}
	return n, nil
}

// RunOnce executes every job and reports counts. A true
// maintenance_paused setting skips the sweep entirely.
func (s *Sweeper) RunOnce(ctx context.Context) (*Report, error) {
	if s.settings != nil && s.settings.Bool(ctx, settings.KeyMaintenancePaused, false) {
		s.logger.Info("Maintenance paused by configuration")
		return &Report{}, nil
	}
	expired, deleted, err := s.SweepSessions(ctx)
	if err != nil {
		return nil, err
	}
	cleared, err := s.SweepResetTokens(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		SessionsExpired: expired,
		SessionsDeleted: deleted,
		TokensCleared:   cleared,
	}
	s.logger.Info("Maintenance sweep complete",
		zap.Int64("sessions_expired", report.SessionsExpired),
		zap.Int64("sessions_deleted", report.SessionsDeleted),
		zap.Int64("tokens_cleared", report.TokensCleared))
	return report, nil
}

// Run executes RunOnce on a ticker until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Maintenance loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Maintenance loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Maintenance sweep failed", zap.Error(err))
			}
		}
	}
}
