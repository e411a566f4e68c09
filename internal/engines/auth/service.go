// Package auth orchestrates login, session lifecycle, token rotation and
// password management for the SDS core.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/password"
	"github.com/sds-platform/sds-core/internal/providers"
	"github.com/sds-platform/sds-core/internal/store"
	"github.com/sds-platform/sds-core/internal/token"
	"go.uber.org/zap"
)

// ResetMailer delivers password-reset messages. Satisfied by the
// notification dispatcher.
type ResetMailer interface {
	SendPasswordReset(ctx context.Context, to, resetToken string) error
}

// Service is the authentication engine.
type Service struct {
	store    store.Store
	tokens   *token.Service
	factory  *providers.Factory
	recorder *audit.Recorder
	mailer   ResetMailer
	cfg      *config.Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the authentication engine.
func NewService(st store.Store, tokens *token.Service, factory *providers.Factory, recorder *audit.Recorder, mailer ResetMailer, cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		tokens:   tokens,
		factory:  factory,
		recorder: recorder,
		mailer:   mailer,
		cfg:      cfg,
		logger:   logger.With(zap.String("engine", "auth")),
		now:      time.Now,
	}
}

// validateUsernameShape is the lenient login-path check: no reserved names,
// just sanity on length and control characters.
func validateUsernameShape(username string) error {
	if username == "" || len(username) > 150 {
		return apperrors.Authentication("invalid credentials")
	}
	for _, r := range username {
		if r < 0x20 || r == 0x7f {
			return apperrors.Authentication("invalid credentials")
		}
	}
	return nil
}

// Login authenticates credentials and issues a session token pair.
func (s *Service) Login(ctx context.Context, username, plaintext, ip, userAgent string) (*models.TokenPair, error) {
	meta := audit.RequestMeta{IP: ip, UserAgent: userAgent}

	if err := validateUsernameShape(username); err != nil {
		return nil, err
	}

	user, err := s.store.Users().ByUsername(ctx, username)
	switch {
	case err == nil:
		return s.loginKnown(ctx, user, plaintext, meta)
	case errors.Is(err, store.ErrNotFound):
		return s.loginOnboard(ctx, username, plaintext, meta)
	default:
		return nil, apperrors.Database(err)
	}
}

func (s *Service) loginKnown(ctx context.Context, user *models.User, plaintext string, meta audit.RequestMeta) (*models.TokenPair, error) {
	meta.ActorID = &user.ID
	now := s.now()

	if !user.Active {
		s.recorder.Failure(ctx, meta, models.AuditAuthentication, "auth", "login",
			&models.AuthDetail{Username: user.Username, Reason: "inactive"})
		return nil, apperrors.UserInactive()
	}

	if user.LockedAt != nil {
		if now.Sub(*user.LockedAt) < s.cfg.LockoutWindow() {
			s.recorder.Failure(ctx, meta, models.AuditAuthentication, "auth", "login",
				&models.AuthDetail{Username: user.Username, Reason: "locked"})
			return nil, apperrors.Authentication("usuario bloqueado por intentos fallidos")
		}
		user.LockedAt = nil
		user.FailedAttempts = 0
	}

	profile, err := s.verifyCredentials(ctx, user, plaintext)
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) && appErr.Code == apperrors.CodeExternalService {
			// Transient back-end failure: no failed-attempt penalty.
			return nil, err
		}
		return nil, s.registerFailedAttempt(ctx, user, meta)
	}

	user.FailedAttempts = 0
	user.LockedAt = nil
	if profile != nil {
		mergeProfile(user, profile)
	}
	if s.passwordExpired(user, now) {
		user.RequiresPwdChange = true
	}
	lastLogin := now
	user.LastLoginAt = &lastLogin
	if err := s.store.Users().Update(ctx, user); err != nil {
		return nil, apperrors.Database(err)
	}

	pair, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	s.recorder.Success(ctx, meta, models.AuditAuthentication, "auth", "login",
		&models.AuthDetail{Username: user.Username, Provider: string(user.AuthKind)})
	return pair, nil
}

// passwordExpired reports whether a local user's password is past the
// configured maximum age. Accounts that never changed their password count
// from creation.
func (s *Service) passwordExpired(user *models.User, now time.Time) bool {
	if !s.cfg.EnforcePasswordExpiration || user.AuthKind != models.AuthKindLocal {
		return false
	}
	since := user.CreatedAt
	if user.LastPasswordChange != nil {
		since = *user.LastPasswordChange
	}
	return now.Sub(since) > s.cfg.PasswordMaxAge()
}

// verifyCredentials dispatches to the provider matching the user's kind.
func (s *Service) verifyCredentials(ctx context.Context, user *models.User, plaintext string) (*models.ExternalProfile, error) {
	provider := s.factory.ByKind(user.AuthKind)
	if provider == nil {
		s.logger.Error("No provider for authentication kind",
			zap.String("kind", string(user.AuthKind)), zap.String("username", user.Username))
		return nil, apperrors.Authentication("invalid credentials")
	}

	profile, err := provider.Authenticate(ctx, user.Username, plaintext)
	if errors.Is(err, providers.ErrDelegated) {
		if user.PasswordHash == nil || !password.Verify(plaintext, *user.PasswordHash) {
			return nil, apperrors.Authentication("invalid credentials")
		}
		return nil, nil
	}
	if err != nil {
		if errors.Is(err, providers.ErrUnavailable) {
			return nil, apperrors.External(string(user.AuthKind), err)
		}
		return nil, apperrors.Authentication("invalid credentials")
	}
	return profile, nil
}

func (s *Service) registerFailedAttempt(ctx context.Context, user *models.User, meta audit.RequestMeta) error {
	user.FailedAttempts++
	reason := "bad_credentials"
	if user.FailedAttempts >= s.cfg.MaxLoginAttempts {
		now := s.now()
		user.LockedAt = &now
		reason = "locked"
		s.logger.Warn("Account locked after failed attempts",
			zap.String("username", user.Username),
			zap.Int("attempts", user.FailedAttempts))
	}
	if err := s.store.Users().Update(ctx, user); err != nil {
		return apperrors.Database(err)
	}
	s.recorder.Failure(ctx, meta, models.AuditAuthentication, "auth", "login",
		&models.AuthDetail{Username: user.Username, Reason: reason})
	return apperrors.Authentication("invalid credentials")
}

// loginOnboard tries the enabled external providers for an unknown username
// and creates the local record from the first profile returned.
func (s *Service) loginOnboard(ctx context.Context, username, plaintext string, meta audit.RequestMeta) (*models.TokenPair, error) {
	for _, provider := range s.factory.External() {
		profile, err := provider.Authenticate(ctx, username, plaintext)
		if err != nil {
			if errors.Is(err, providers.ErrUnavailable) {
				s.logger.Warn("Provider unavailable during onboarding",
					zap.String("provider", string(provider.Kind())), zap.Error(err))
			}
			continue
		}

		user := &models.User{
			Username: username,
			FullName: profile.FullName,
			AuthKind: provider.Kind(),
			Active:   true,
		}
		if profile.Email != "" {
			email := profile.Email
			user.Email = &email
		}
		if profile.ExternalID != "" {
			extID := profile.ExternalID
			user.ExternalID = &extID
		}
		now := s.now()
		user.LastLoginAt = &now
		if err := s.store.Users().Create(ctx, user); err != nil {
			return nil, apperrors.Database(err)
		}
		meta.ActorID = &user.ID

		pair, err := s.issueSession(ctx, user, meta)
		if err != nil {
			return nil, err
		}
		s.recorder.Success(ctx, meta, models.AuditAuthentication, "auth", "login",
			&models.AuthDetail{Username: username, Provider: string(provider.Kind()), Reason: "onboarded"})
		return pair, nil
	}

	s.recorder.Failure(ctx, meta, models.AuditAuthentication, "auth", "login",
		&models.AuthDetail{Username: username, Reason: "unknown_user"})
	return nil, apperrors.Authentication("invalid credentials")
}

func mergeProfile(user *models.User, profile *models.ExternalProfile) {
	if profile.FullName != "" {
		user.FullName = profile.FullName
	}
	if profile.Email != "" {
		email := profile.Email
		user.Email = &email
	}
	if profile.ExternalID != "" {
		extID := profile.ExternalID
		user.ExternalID = &extID
	}
}

// issueSession mints a token pair and persists the session under the
// active-session cap.
func (s *Service) issueSession(ctx context.Context, user *models.User, meta audit.RequestMeta) (*models.TokenPair, error) {
	access, refresh, accessExp, refreshExp, err := s.tokens.MintPair(user.ID, user.Username)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	session := &models.Session{
		ID:               uuid.New().String(),
		UserID:           user.ID,
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		Valid:            true,
		IP:               meta.IP,
		UserAgent:        meta.UserAgent,
	}
	if err := s.store.Sessions().Create(ctx, session, s.cfg.MaxActiveSessionsPerUser); err != nil {
		return nil, apperrors.Database(err)
	}

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Refresh rotates a session's token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken, ip, userAgent string) (*models.TokenPair, error) {
	claims, err := s.tokens.Validate(refreshToken, token.KindRefresh)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.TokenInvalid()
	}

	session, err := s.store.Sessions().ByRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.TokenInvalid()
		}
		return nil, apperrors.Database(err)
	}
	if !session.Active(s.now()) {
		return nil, apperrors.TokenInvalid()
	}

	user, err := s.store.Users().ByID(ctx, session.UserID)
	if err != nil {
		return nil, apperrors.TokenInvalid()
	}
	if !user.Active {
		return nil, apperrors.UserInactive()
	}

	access, refresh, accessExp, refreshExp, err := s.tokens.MintPair(user.ID, user.Username)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if err := s.store.Sessions().Rotate(ctx, session.ID, access, refresh, accessExp, refreshExp); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Lost a concurrent rotation race; the presented token is stale.
			return nil, apperrors.TokenInvalid()
		}
		return nil, apperrors.Database(err)
	}

	meta := audit.RequestMeta{ActorID: &user.ID, IP: ip, UserAgent: userAgent}
	s.recorder.Success(ctx, meta, models.AuditAuthentication, "auth", "refresh",
		&models.AuthDetail{Username: claims.Subject})

	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Resolve turns an access token into the CurrentUser identity view.
func (s *Service) Resolve(ctx context.Context, accessToken string) (*models.CurrentUser, error) {
	claims, err := s.tokens.Validate(accessToken, token.KindAccess)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, apperrors.TokenExpired()
		}
		return nil, apperrors.TokenInvalid()
	}

	session, err := s.store.Sessions().ByAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.TokenInvalid()
		}
		return nil, apperrors.Database(err)
	}
	now := s.now()
	if !session.Valid || session.AccessExpiresAt.Before(now) {
		return nil, apperrors.TokenExpired()
	}

	user, err := s.store.Users().ByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.TokenInvalid()
	}
	if !user.Active {
		return nil, apperrors.UserInactive()
	}

	_ = s.store.Sessions().Touch(ctx, session.ID, now)
	return s.currentUser(ctx, user)
}

// currentUser assembles the identity view with role names and effective
// permission codes. Superusers get the wildcard.
func (s *Service) currentUser(ctx context.Context, user *models.User) (*models.CurrentUser, error) {
	cu := &models.CurrentUser{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		FullName:  user.FullName,
		Active:    user.Active,
		Superuser: user.Superuser,
		AuthKind:  user.AuthKind,
	}

	roles, err := s.store.Roles().RolesForUser(ctx, user.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	cu.Roles = make([]string, 0, len(roles))
	for _, r := range roles {
		cu.Roles = append(cu.Roles, r.Name)
	}

	if user.Superuser {
		cu.Permissions = []string{models.PermissionWildcard}
		return cu, nil
	}
	codes, err := s.store.Roles().PermissionCodesForUser(ctx, user.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	cu.Permissions = codes
	return cu, nil
}

// Logout invalidates the session behind an access token. Invalidating an
// already-invalid session is a no-op.
func (s *Service) Logout(ctx context.Context, accessToken, ip, userAgent string) error {
	session, err := s.store.Sessions().ByAccessToken(ctx, accessToken)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.TokenInvalid()
		}
		return apperrors.Database(err)
	}
	if err := s.store.Sessions().Invalidate(ctx, session.ID, models.InvalidationLogout); err != nil {
		return apperrors.Database(err)
	}
	meta := audit.RequestMeta{ActorID: &session.UserID, IP: ip, UserAgent: userAgent}
	s.recorder.Success(ctx, meta, models.AuditAuthentication, "auth", "logout", nil)
	return nil
}
