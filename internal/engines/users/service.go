// Package users is the user-administration engine: account CRUD under the
// user cap with uniqueness and last-superuser guarantees.
package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/config"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/password"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,150}$`)
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

	// reservedUsernames cannot be taken by new accounts.
	reservedUsernames = map[string]bool{
		"admin": true, "root": true, "system": true, "sds": true,
		"soporte": true, "administrador": true,
	}
)

// Service is the user-administration engine.
type Service struct {
	store    store.Store
	recorder *audit.Recorder
	cfg      *config.Config
	logger   *zap.Logger
}

// NewService creates the user engine.
func NewService(st store.Store, recorder *audit.Recorder, cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger.With(zap.String("engine", "users")),
	}
}

// CreateInput is the payload for Create.
type CreateInput struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email"`
	FullName  string `json:"nombre_completo"`
	Password  string `json:"password" binding:"required"`
	Superuser bool   `json:"es_superusuario"`
}

// UpdateInput is the patch payload for Update.
type UpdateInput struct {
	Email     *string `json:"email"`
	FullName  *string `json:"nombre_completo"`
	Active    *bool   `json:"activo"`
	Superuser *bool   `json:"es_superusuario"`
}

// validateUsername checks shape and the reserved list. The first account of
// the system may take a reserved name; after that they stay off-limits.
func validateUsername(username string, allowReserved bool) error {
	if !usernameRe.MatchString(username) {
		return apperrors.Validation("el nombre de usuario debe tener entre 3 y 150 caracteres alfanuméricos")
	}
	if !allowReserved && reservedUsernames[strings.ToLower(username)] {
		return apperrors.Validation(fmt.Sprintf("el nombre de usuario %q está reservado", username))
	}
	if !password.SafeText(username) {
		return apperrors.Validation("el nombre de usuario contiene caracteres no permitidos")
	}
	return nil
}

// Count returns the total number of users. Used by the first-user
// bootstrap gate.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.store.Users().Count(ctx)
	if err != nil {
		return 0, apperrors.Database(err)
	}
	return n, nil
}

// Create registers a local account. When bootstrap is true the new account
// is made an active superuser regardless of the input flag.
func (s *Service) Create(ctx context.Context, in CreateInput, bootstrap bool, meta audit.RequestMeta) (*models.User, error) {
	if err := validateUsername(in.Username, bootstrap); err != nil {
		return nil, err
	}
	if in.Email != "" && !emailRe.MatchString(in.Email) {
		return nil, apperrors.Validation("el correo electrónico no es válido")
	}
	if !password.SafeText(in.FullName) {
		return nil, apperrors.Validation("el nombre contiene caracteres no permitidos")
	}

	if s.cfg.EnforceUserLimit && !bootstrap {
		count, err := s.store.Users().Count(ctx)
		if err != nil {
			return nil, apperrors.Database(err)
		}
		if count >= s.cfg.MaxUsersLimit {
			return nil, apperrors.Validation(fmt.Sprintf("se alcanzó el límite de %d usuarios", s.cfg.MaxUsersLimit))
		}
	}

	var emailLocal string
	if in.Email != "" {
		emailLocal = in.Email[:strings.Index(in.Email, "@")]
	}
	if err := password.CheckStrength(in.Password, in.Username, emailLocal); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, apperrors.Database(err)
	}

	user := &models.User{
		Username:     in.Username,
		FullName:     in.FullName,
		AuthKind:     models.AuthKindLocal,
		Active:       true,
		Superuser:    in.Superuser || bootstrap,
		PasswordHash: &hash,
	}
	if in.Email != "" {
		email := in.Email
		user.Email = &email
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, apperrors.Conflict("el nombre de usuario o correo ya está registrado")
		}
		return nil, apperrors.Database(err)
	}

	s.recorder.Success(ctx, meta, models.AuditDataAccess, "usuarios", "create",
		&models.ConfigDetail{Entity: "usuario", Name: user.Username})
	s.logger.Info("User created",
		zap.String("username", user.Username),
		zap.Bool("superuser", user.Superuser),
		zap.Bool("bootstrap", bootstrap))
	return user, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.store.Users().ByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("usuario")
		}
		return nil, apperrors.Database(err)
	}
	return user, nil
}

// List returns a page of users.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	out, err := s.store.Users().List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return out, nil
}

// Update applies a patch. Stripping the superuser flag or deactivating the
// account is refused when it would leave no active superuser.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput, meta audit.RequestMeta) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	losesSuper := user.Superuser && user.Active &&
		((in.Superuser != nil && !*in.Superuser) || (in.Active != nil && !*in.Active))
	if losesSuper {
		if err := s.guardLastSuperuser(ctx); err != nil {
			return nil, err
		}
	}

	if in.Email != nil {
		if *in.Email == "" {
			user.Email = nil
		} else {
			if !emailRe.MatchString(*in.Email) {
				return nil, apperrors.Validation("el correo electrónico no es válido")
			}
			user.Email = in.Email
		}
	}
	if in.FullName != nil {
		if !password.SafeText(*in.FullName) {
			return nil, apperrors.Validation("el nombre contiene caracteres no permitidos")
		}
		user.FullName = *in.FullName
	}
	if in.Active != nil {
		user.Active = *in.Active
	}
	if in.Superuser != nil {
		user.Superuser = *in.Superuser
	}
	if err := s.store.Users().Update(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, apperrors.Conflict("el correo ya está registrado")
		}
		return nil, apperrors.Database(err)
	}

	if in.Active != nil && !*in.Active {
		if _, err := s.store.Sessions().InvalidateUser(ctx, user.ID, "", models.InvalidationAdminReset); err != nil {
			return nil, apperrors.Database(err)
		}
	}

	s.recorder.Success(ctx, meta, models.AuditDataAccess, "usuarios", "update",
		&models.ConfigDetail{Entity: "usuario", Name: user.Username})
	return user, nil
}

// Delete removes an account. Audit rows keep a null actor afterwards.
func (s *Service) Delete(ctx context.Context, id int64, meta audit.RequestMeta) error {
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if user.Superuser && user.Active {
		if err := s.guardLastSuperuser(ctx); err != nil {
			return err
		}
	}
	if _, err := s.store.Sessions().InvalidateUser(ctx, user.ID, "", models.InvalidationAdminReset); err != nil {
		return apperrors.Database(err)
	}
	if err := s.store.Users().Delete(ctx, id); err != nil {
		return apperrors.Database(err)
	}
	s.recorder.Success(ctx, meta, models.AuditDataAccess, "usuarios", "delete",
		&models.ConfigDetail{Entity: "usuario", Name: user.Username})
	return nil
}

func (s *Service) guardLastSuperuser(ctx context.Context) error {
	n, err := s.store.Users().CountActiveSuperusers(ctx)
	if err != nil {
		return apperrors.Database(err)
	}
	if n <= 1 {
		return apperrors.Validation("no se puede eliminar el último superusuario activo")
	}
	return nil
}
