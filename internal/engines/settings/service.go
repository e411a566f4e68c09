// Package settings manages the configuracion_sistema key/value table:
// runtime-tunable policy values read by the maintenance jobs and exposed
// through the administration surface. Environment configuration stays
// authoritative at startup; these values override it between restarts.
package settings

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/password"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

// Keys the maintenance jobs consult at runtime.
const (
	KeySessionRetentionDays = "session_retention_days"
	KeyMaintenancePaused    = "maintenance_paused"
)

var keyRe = regexp.MustCompile(`^[a-z][a-z0-9_.]{0,99}$`)

// Service is the system-configuration engine.
type Service struct {
	store    store.Store
	recorder *audit.Recorder
	logger   *zap.Logger
}

// NewService creates the settings engine.
func NewService(st store.Store, recorder *audit.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		recorder: recorder,
		logger:   logger.With(zap.String("engine", "settings")),
	}
}

// All returns every stored key/value pair.
func (s *Service) All(ctx context.Context) (map[string]string, error) {
	values, err := s.store.SystemConfig().All(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return values, nil
}

// Set stores one value and audits the change with the previous value.
func (s *Service) Set(ctx context.Context, key, value string, meta audit.RequestMeta) error {
	if !keyRe.MatchString(key) {
		return apperrors.Validation(fmt.Sprintf("la clave %q no es válida", key))
	}
	if len(value) > 1000 || !password.SafeText(value) {
		return apperrors.Validation("el valor contiene caracteres no permitidos")
	}

	old, _, err := s.store.SystemConfig().Get(ctx, key)
	if err != nil {
		return apperrors.Database(err)
	}
	if err := s.store.SystemConfig().Set(ctx, key, value, meta.ActorID); err != nil {
		return apperrors.Database(err)
	}

	s.recorder.Success(ctx, meta, models.AuditConfiguration, "configuracion", "set",
		&models.ConfigDetail{Key: key, OldValue: old, NewValue: value})
	s.logger.Info("Setting updated", zap.String("key", key))
	return nil
}

// String returns the stored value or fallback when the key is absent.
// Lookup failures fall back rather than propagate; callers use these
// getters on hot paths where the environment default is always usable.
func (s *Service) String(ctx context.Context, key, fallback string) string {
	value, ok, err := s.store.SystemConfig().Get(ctx, key)
	if err != nil {
		s.logger.Warn("Setting lookup failed", zap.String("key", key), zap.Error(err))
		return fallback
	}
	if !ok {
		return fallback
	}
	return value
}

// Int returns the stored value parsed as an integer, or fallback when the
// key is absent or malformed.
func (s *Service) Int(ctx context.Context, key string, fallback int) int {
	raw := s.String(ctx, key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		s.logger.Warn("Setting is not an integer", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return n
}

// Bool returns the stored value parsed as a boolean, or fallback when the
// key is absent or malformed.
func (s *Service) Bool(ctx context.Context, key string, fallback bool) bool {
	raw := s.String(ctx, key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		s.logger.Warn("Setting is not a boolean", zap.String("key", key), zap.String("value", raw))
		return fallback
	}
	return v
}
