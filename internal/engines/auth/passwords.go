package auth

import (
	"context"
	"errors"

	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/password"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

const resetTokenBytes = 32

// checkPolicy runs the strength rules and, when enabled, the reuse check
// against the recent history window.
func (s *Service) checkPolicy(ctx context.Context, user *models.User, candidate string) error {
	if err := password.CheckStrength(candidate, user.Username, user.EmailLocalPart()); err != nil {
		return apperrors.Validation(err.Error())
	}
	if user.PasswordHash != nil && password.Verify(candidate, *user.PasswordHash) {
		return apperrors.Validation("la nueva contraseña no puede coincidir con la actual")
	}
	if !s.cfg.EnforcePasswordHistory {
		return nil
	}
	recent, err := s.store.PasswordHistory().Recent(ctx, user.ID, s.cfg.PasswordHistoryCount)
	if err != nil {
		return apperrors.Database(err)
	}
	for _, entry := range recent {
		if password.Verify(candidate, entry.PasswordHash) {
			return apperrors.Validation("la contraseña fue utilizada recientemente")
		}
	}
	return nil
}

// applyPassword stores the new hash, records the old one in history and
// prunes the history window.
func (s *Service) applyPassword(ctx context.Context, user *models.User, candidate string, requiresChange bool) error {
	if user.PasswordHash != nil {
		if err := s.store.PasswordHistory().Append(ctx, user.ID, *user.PasswordHash); err != nil {
			return apperrors.Database(err)
		}
	}

	hash, err := password.Hash(candidate)
	if err != nil {
		return apperrors.Database(err)
	}
	now := s.now()
	user.PasswordHash = &hash
	user.LastPasswordChange = &now
	user.RequiresPwdChange = requiresChange
	user.ResetToken = nil
	user.ResetTokenExpires = nil
	if err := s.store.Users().Update(ctx, user); err != nil {
		return apperrors.Database(err)
	}

	if s.cfg.PasswordHistoryCount > 0 {
		if err := s.store.PasswordHistory().Prune(ctx, user.ID, s.cfg.PasswordHistoryCount); err != nil {
			s.logger.Warn("Password history prune failed",
				zap.Int64("user_id", user.ID), zap.Error(err))
		}
	}
	return nil
}

// ChangePassword is the self-service change: verifies the current password,
// enforces policy and keeps other sessions intact.
func (s *Service) ChangePassword(ctx context.Context, userID int64, current, next, ip, userAgent string) error {
	user, err := s.store.Users().ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("usuario")
		}
		return apperrors.Database(err)
	}
	meta := audit.RequestMeta{ActorID: &user.ID, IP: ip, UserAgent: userAgent}

	if user.AuthKind != models.AuthKindLocal {
		return apperrors.Validation("la contraseña se administra en el proveedor externo")
	}
	if user.PasswordHash == nil || !password.Verify(current, *user.PasswordHash) {
		s.recorder.Failure(ctx, meta, models.AuditSecurity, "auth", "change_password",
			&models.AuthDetail{Username: user.Username, Reason: "bad_current_password"})
		return apperrors.Authentication("invalid credentials")
	}
	if err := s.checkPolicy(ctx, user, next); err != nil {
		return err
	}
	if err := s.applyPassword(ctx, user, next, false); err != nil {
		return err
	}
	s.recorder.Success(ctx, meta, models.AuditSecurity, "auth", "change_password",
		&models.AuthDetail{Username: user.Username})
	return nil
}

// AdminResetPassword sets a new password for another user, flags a forced
// change on next login and invalidates every active session.
func (s *Service) AdminResetPassword(ctx context.Context, actorID, targetID int64, next, ip, userAgent string) error {
	user, err := s.store.Users().ByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("usuario")
		}
		return apperrors.Database(err)
	}
	if user.AuthKind != models.AuthKindLocal {
		return apperrors.Validation("la contraseña se administra en el proveedor externo")
	}
	if err := s.checkPolicy(ctx, user, next); err != nil {
		return err
	}
	user.FailedAttempts = 0
	user.LockedAt = nil
	if err := s.applyPassword(ctx, user, next, true); err != nil {
		return err
	}
	if _, err := s.store.Sessions().InvalidateUser(ctx, user.ID, "", models.InvalidationAdminReset); err != nil {
		return apperrors.Database(err)
	}

	meta := audit.RequestMeta{ActorID: &actorID, IP: ip, UserAgent: userAgent}
	s.recorder.Success(ctx, meta, models.AuditSecurity, "auth", "admin_reset_password",
		&models.AuthDetail{Username: user.Username})
	return nil
}

// RequestPasswordReset issues a single-use reset token. The response is
// uniform whether or not the email is registered; the token is returned to
// the caller only so non-production deployments can surface it.
func (s *Service) RequestPasswordReset(ctx context.Context, email, ip, userAgent string) (string, error) {
	meta := audit.RequestMeta{IP: ip, UserAgent: userAgent}

	user, err := s.store.Users().ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recorder.Failure(ctx, meta, models.AuditSecurity, "auth", "request_reset",
				&models.AuthDetail{Reason: "unknown_email"})
			return "", nil
		}
		return "", apperrors.Database(err)
	}
	if !user.Active || user.AuthKind != models.AuthKindLocal {
		s.recorder.Failure(ctx, meta, models.AuditSecurity, "auth", "request_reset",
			&models.AuthDetail{Username: user.Username, Reason: "ineligible"})
		return "", nil
	}

	raw, err := password.GenerateToken(resetTokenBytes)
	if err != nil {
		return "", apperrors.Database(err)
	}
	expires := s.now().Add(s.cfg.ResetTokenTTL())
	user.ResetToken = &raw
	user.ResetTokenExpires = &expires
	if err := s.store.Users().Update(ctx, user); err != nil {
		return "", apperrors.Database(err)
	}

	if s.mailer != nil && user.Email != nil {
		if err := s.mailer.SendPasswordReset(ctx, *user.Email, raw); err != nil {
			s.logger.Error("Password reset mail delivery failed",
				zap.String("username", user.Username), zap.Error(err))
		}
	}

	meta.ActorID = &user.ID
	s.recorder.Success(ctx, meta, models.AuditSecurity, "auth", "request_reset",
		&models.AuthDetail{Username: user.Username})
	return raw, nil
}

// ConsumeReset redeems a reset token: sets the new password and invalidates
// the token and all sessions.
func (s *Service) ConsumeReset(ctx context.Context, rawToken, next, ip, userAgent string) error {
	meta := audit.RequestMeta{IP: ip, UserAgent: userAgent}

	user, err := s.store.Users().ByResetToken(ctx, rawToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.recorder.Failure(ctx, meta, models.AuditSecurity, "auth", "consume_reset",
				&models.AuthDetail{Reason: "invalid_token"})
			return apperrors.TokenInvalid()
		}
		return apperrors.Database(err)
	}
	if user.ResetTokenExpires == nil || user.ResetTokenExpires.Before(s.now()) {
		s.recorder.Failure(ctx, meta, models.AuditSecurity, "auth", "consume_reset",
			&models.AuthDetail{Username: user.Username, Reason: "expired_token"})
		return apperrors.TokenExpired()
	}
	if !user.Active {
		return apperrors.UserInactive()
	}
	if err := s.checkPolicy(ctx, user, next); err != nil {
		return err
	}
	// A successful reset also lifts any lockout from prior failed attempts.
	user.FailedAttempts = 0
	user.LockedAt = nil
	if err := s.applyPassword(ctx, user, next, false); err != nil {
		return err
	}
	if _, err := s.store.Sessions().InvalidateUser(ctx, user.ID, "", models.InvalidationAdminReset); err != nil {
		return apperrors.Database(err)
	}

	meta.ActorID = &user.ID
	s.recorder.Success(ctx, meta, models.AuditSecurity, "auth", "consume_reset",
		&models.AuthDetail{Username: user.Username})
	return nil
}

// SweepExpiredResetTokens clears tokens past their expiry. Used by the
// maintenance runner.
func (s *Service) SweepExpiredResetTokens(ctx context.Context) (int64, error) {
	n, err := s.store.Users().ClearExpiredResetTokens(ctx, s.now())
	if err != nil {
		return 0, apperrors.Database(err)
	}
	if n > 0 {
		s.logger.Info("Cleared expired reset tokens", zap.Int64("count", n))
	}
	return n, nil
}
