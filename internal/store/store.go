// Package store describes the persistence operations required by the SDS
// engines and provides Postgres and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sds-platform/sds-core/internal/models"
)

// Common persistence failures shared by all implementations.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrConflict      = errors.New("store: conflict")
)

// Store aggregates the per-entity stores behind one handle.
type Store interface {
	Users() UserStore
	Roles() RoleStore
	Permissions() PermissionStore
	Sessions() SessionStore
	PasswordHistory() PasswordHistoryStore
	Audit() AuditStore
	Signals() SignalStore
	SignalHistory() SignalHistoryStore
	Categories() CategoryStore
	SystemConfig() SystemConfigStore
}

// UserStore manages user accounts.
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	ByID(ctx context.Context, id int64) (*models.User, error)
	ByUsername(ctx context.Context, username string) (*models.User, error)
	ByEmail(ctx context.Context, email string) (*models.User, error)
	ByResetToken(ctx context.Context, token string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int, error)
	CountActiveSuperusers(ctx context.Context) (int, error)
	ClearExpiredResetTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// RoleStore manages roles and user assignments.
type RoleStore interface {
	Create(ctx context.Context, r *models.Role) error
	ByID(ctx context.Context, id int64) (*models.Role, error)
	ByName(ctx context.Context, name string) (*models.Role, error)
	Update(ctx context.Context, r *models.Role) error
	SoftDelete(ctx context.Context, id int64) error
	List(ctx context.Context, activeOnly bool) ([]*models.Role, error)
	SetPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	PermissionCodesForRole(ctx context.Context, roleID int64) ([]string, error)
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
	RolesForUser(ctx context.Context, userID int64) ([]*models.Role, error)
	PermissionCodesForUser(ctx context.Context, userID int64) ([]string, error)
}

// PermissionStore manages the permission catalog.
type PermissionStore interface {
	Ensure(ctx context.Context, perms []models.Permission) error
	List(ctx context.Context) ([]*models.Permission, error)
	ByCodes(ctx context.Context, codes []string) ([]*models.Permission, error)
}

// SessionStore manages persistent session records.
type SessionStore interface {
	// Create persists a session, enforcing the active-session cap for the
	// owner: when the cap is reached the oldest active session is
	// invalidated first. Implementations serialize concurrent creates for
	// the same user.
	Create(ctx context.Context, s *models.Session, cap int) error
	ByAccessToken(ctx context.Context, token string) (*models.Session, error)
	ByRefreshToken(ctx context.Context, token string) (*models.Session, error)
	ListActive(ctx context.Context, userID int64) ([]*models.Session, error)
	CountActive(ctx context.Context, userID int64) (int, error)
	Invalidate(ctx context.Context, id, reason string) error
	InvalidateUser(ctx context.Context, userID int64, exceptID, reason string) (int64, error)
	// Rotate atomically replaces both token strings and expiries of a valid
	// session and bumps last access. Returns ErrConflict when the session is
	// no longer valid.
	Rotate(ctx context.Context, id, access, refresh string, accessExp, refreshExp time.Time) error
	Touch(ctx context.Context, id string, at time.Time) error
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteInvalidBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PasswordHistoryStore keeps prior password hashes for reuse checks.
type PasswordHistoryStore interface {
	Append(ctx context.Context, userID int64, hash string) error
	Recent(ctx context.Context, userID int64, k int) ([]*models.PasswordHistoryEntry, error)
	Prune(ctx context.Context, userID int64, keep int) error
}

// AuditStore appends immutable audit events.
type AuditStore interface {
	Append(ctx context.Context, e *models.AuditEvent) error
	List(ctx context.Context, kind models.AuditKind, limit, offset int) ([]*models.AuditEvent, error)
}

// SignalStore manages detected-signal records.
type SignalStore interface {
	ByID(ctx context.Context, id int64) (*models.Signal, error)
	Update(ctx context.Context, s *models.Signal) error
	List(ctx context.Context, limit, offset int) ([]*models.Signal, error)
}

// SignalHistoryStore appends per-signal trazability rows.
type SignalHistoryStore interface {
	Append(ctx context.Context, e *models.SignalHistoryEntry) error
	ListBySignal(ctx context.Context, signalID int64, limit int) ([]*models.SignalHistoryEntry, error)
	// LastForActor returns the most recent row for one actor on one signal,
	// used by the retry dedupe window. ErrNotFound when none exists.
	LastForActor(ctx context.Context, signalID, actorID int64) (*models.SignalHistoryEntry, error)
}

// CategoryStore resolves signal and analysis categories.
type CategoryStore interface {
	SignalCategoryByID(ctx context.Context, id int64) (*models.SignalCategory, error)
	AnalysisCategoryByID(ctx context.Context, id int64) (*models.AnalysisCategory, error)
	ListSignalCategories(ctx context.Context) ([]*models.SignalCategory, error)
	ListAnalysisCategories(ctx context.Context) ([]*models.AnalysisCategory, error)
}

// SystemConfigStore manages the configuracion_sistema key/value table.
type SystemConfigStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, updatedBy *int64) error
	All(ctx context.Context) (map[string]string, error)
}
