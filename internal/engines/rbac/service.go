// Package rbac is the role and permission engine: role administration,
// user-role assignment and the effective-permission query.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sds-platform/sds-core/internal/apperrors"
	"github.com/sds-platform/sds-core/internal/audit"
	"github.com/sds-platform/sds-core/internal/models"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

// Service is the RBAC engine.
type Service struct {
	store    store.Store
	recorder *audit.Recorder
	logger   *zap.Logger
}

// NewService creates the RBAC engine.
func NewService(st store.Store, recorder *audit.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		recorder: recorder,
		logger:   logger.With(zap.String("engine", "rbac")),
	}
}

// CreateRoleInput is the payload for CreateRole.
type CreateRoleInput struct {
	Name            string   `json:"nombre" binding:"required"`
	Description     string   `json:"descripcion"`
	PermissionCodes []string `json:"permisos"`
}

// UpdateRoleInput is the patch payload for UpdateRole. Nil fields are left
// untouched; a non-nil PermissionCodes replaces the full set.
type UpdateRoleInput struct {
	Name            *string   `json:"nombre"`
	Description     *string   `json:"descripcion"`
	Active          *bool     `json:"activo"`
	PermissionCodes *[]string `json:"permisos"`
}

// CreateRole creates a non-system role, optionally attaching an initial
// permission set.
func (s *Service) CreateRole(ctx context.Context, in CreateRoleInput, meta audit.RequestMeta) (*models.RoleWithPermissions, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.Validation("el nombre del rol es obligatorio")
	}

	role := &models.Role{
		Name:        name,
		Description: in.Description,
		Active:      true,
		System:      false,
	}
	if err := s.store.Roles().Create(ctx, role); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, apperrors.Conflict(fmt.Sprintf("el rol %q ya existe", name))
		}
		return nil, apperrors.Database(err)
	}

	if len(in.PermissionCodes) > 0 {
		if err := s.attachPermissions(ctx, role.ID, in.PermissionCodes); err != nil {
			return nil, err
		}
	}

	s.recorder.Success(ctx, meta, models.AuditConfiguration, "rbac", "create_role",
		&models.ConfigDetail{Entity: "rol", Name: role.Name})
	return s.roleWithPermissions(ctx, role)
}

// UpdateRole applies a patch to a non-system role.
func (s *Service) UpdateRole(ctx context.Context, roleID int64, in UpdateRoleInput, meta audit.RequestMeta) (*models.RoleWithPermissions, error) {
	role, err := s.store.Roles().ByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("rol")
		}
		return nil, apperrors.Database(err)
	}
	if role.System {
		return nil, apperrors.Validation("los roles de sistema no se pueden modificar")
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.Validation("el nombre del rol es obligatorio")
		}
		role.Name = name
	}
	if in.Description != nil {
		role.Description = *in.Description
	}
	if in.Active != nil {
		role.Active = *in.Active
	}
	if err := s.store.Roles().Update(ctx, role); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, apperrors.Conflict(fmt.Sprintf("el rol %q ya existe", role.Name))
		}
		return nil, apperrors.Database(err)
	}

	if in.PermissionCodes != nil {
		if err := s.attachPermissions(ctx, role.ID, *in.PermissionCodes); err != nil {
			return nil, err
		}
	}

	s.recorder.Success(ctx, meta, models.AuditConfiguration, "rbac", "update_role",
		&models.ConfigDetail{Entity: "rol", Name: role.Name})
	return s.roleWithPermissions(ctx, role)
}

// DeleteRole soft-deletes a non-system role.
func (s *Service) DeleteRole(ctx context.Context, roleID int64, meta audit.RequestMeta) error {
	role, err := s.store.Roles().ByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("rol")
		}
		return apperrors.Database(err)
	}
	if role.System {
		return apperrors.Validation("los roles de sistema no se pueden eliminar")
	}
	if err := s.store.Roles().SoftDelete(ctx, roleID); err != nil {
		return apperrors.Database(err)
	}
	s.recorder.Success(ctx, meta, models.AuditConfiguration, "rbac", "delete_role",
		&models.ConfigDetail{Entity: "rol", Name: role.Name})
	return nil
}

// attachPermissions resolves codes and replaces the role's permission set.
func (s *Service) attachPermissions(ctx context.Context, roleID int64, codes []string) error {
	perms, err := s.store.Permissions().ByCodes(ctx, codes)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.Validation("uno o más códigos de permiso no existen")
		}
		return apperrors.Database(err)
	}
	ids := make([]int64, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	if err := s.store.Roles().SetPermissions(ctx, roleID, ids); err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// ListRoles returns roles with their permission codes.
func (s *Service) ListRoles(ctx context.Context, activeOnly bool) ([]*models.RoleWithPermissions, error) {
	roles, err := s.store.Roles().List(ctx, activeOnly)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	out := make([]*models.RoleWithPermissions, 0, len(roles))
	for _, role := range roles {
		rwp, err := s.roleWithPermissions(ctx, role)
		if err != nil {
			return nil, err
		}
		out = append(out, rwp)
	}
	return out, nil
}

// GetRole returns one role with its permission codes.
func (s *Service) GetRole(ctx context.Context, roleID int64) (*models.RoleWithPermissions, error) {
	role, err := s.store.Roles().ByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("rol")
		}
		return nil, apperrors.Database(err)
	}
	return s.roleWithPermissions(ctx, role)
}

func (s *Service) roleWithPermissions(ctx context.Context, role *models.Role) (*models.RoleWithPermissions, error) {
	codes, err := s.store.Roles().PermissionCodesForRole(ctx, role.ID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return &models.RoleWithPermissions{Role: *role, PermissionCodes: codes}, nil
}

// ListPermissions returns the permission catalog.
func (s *Service) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	perms, err := s.store.Permissions().List(ctx)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return perms, nil
}

// AssignRoles replaces a user's role set. All target roles must exist and
// be active.
func (s *Service) AssignRoles(ctx context.Context, userID int64, roleIDs []int64, meta audit.RequestMeta) error {
	if _, err := s.store.Users().ByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("usuario")
		}
		return apperrors.Database(err)
	}
	for _, id := range roleIDs {
		role, err := s.store.Roles().ByID(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperrors.Validation(fmt.Sprintf("el rol %d no existe", id))
			}
			return apperrors.Database(err)
		}
		if !role.Active {
			return apperrors.Validation(fmt.Sprintf("el rol %q está inactivo", role.Name))
		}
	}
	if err := s.store.Roles().ReplaceUserRoles(ctx, userID, roleIDs); err != nil {
		return apperrors.Database(err)
	}
	s.recorder.Success(ctx, meta, models.AuditConfiguration, "rbac", "assign_roles",
		&models.ConfigDetail{Entity: "usuario_roles", Name: fmt.Sprintf("usuario %d", userID)})
	return nil
}

// EffectivePermissions returns a user's permission codes. Superusers get
// the wildcard.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	user, err := s.store.Users().ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NotFound("usuario")
		}
		return nil, apperrors.Database(err)
	}
	if user.Superuser {
		return []string{models.PermissionWildcard}, nil
	}
	codes, err := s.store.Roles().PermissionCodesForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return codes, nil
}

// HasPermission reports whether the user holds every required code.
func (s *Service) HasPermission(ctx context.Context, userID int64, required ...string) (bool, error) {
	codes, err := s.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	held := make(map[string]bool, len(codes))
	for _, c := range codes {
		if c == models.PermissionWildcard {
			return true, nil
		}
		held[c] = true
	}
	for _, r := range required {
		if !held[r] {
			return false, nil
		}
	}
	return true, nil
}
