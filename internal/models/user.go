// Package models provides data structures for the SDS auth core.
package models

import (
	"time"
)

// AuthKind identifies the back-end that authenticates a user.
type AuthKind string

const (
	AuthKindLocal     AuthKind = "local"
	AuthKindDirectory AuthKind = "directory"
	AuthKindCloud     AuthKind = "cloud"
)

// Valid reports whether k is a known authentication kind.
func (k AuthKind) Valid() bool {
	switch k {
	case AuthKindLocal, AuthKindDirectory, AuthKindCloud:
		return true
	}
	return false
}

// User represents a system user account.
type User struct {
	ID                 int64      `json:"id" db:"id"`
	Username           string     `json:"username" db:"username"`
	Email              *string    `json:"email,omitempty" db:"email"`
	FullName           string     `json:"nombre_completo" db:"nombre_completo"`
	AuthKind           AuthKind   `json:"tipo_autenticacion" db:"tipo_autenticacion"`
	ExternalID         *string    `json:"-" db:"id_externo"`
	PasswordHash       *string    `json:"-" db:"password_hash"` // Never expose in JSON
	Active             bool       `json:"activo" db:"activo"`
	Superuser          bool       `json:"es_superusuario" db:"es_superusuario"`
	RequiresPwdChange  bool       `json:"requiere_cambio_password" db:"requiere_cambio_password"`
	FailedAttempts     int        `json:"-" db:"intentos_fallidos"`
	LockedAt           *time.Time `json:"-" db:"bloqueado_en"`
	LastLoginAt        *time.Time `json:"ultimo_acceso,omitempty" db:"ultimo_acceso"`
	LastPasswordChange *time.Time `json:"-" db:"ultimo_cambio_password"`
	ResetToken         *string    `json:"-" db:"token_reset"`
	ResetTokenExpires  *time.Time `json:"-" db:"token_reset_expira"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// EmailLocalPart returns the part of the user's email before the '@', or "".
func (u *User) EmailLocalPart() string {
	if u.Email == nil {
		return ""
	}
	for i := 0; i < len(*u.Email); i++ {
		if (*u.Email)[i] == '@' {
			return (*u.Email)[:i]
		}
	}
	return ""
}

// CurrentUser is the identity view resolved from an access token.
type CurrentUser struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       *string  `json:"email,omitempty"`
	FullName    string   `json:"nombre_completo"`
	Active      bool     `json:"activo"`
	Superuser   bool     `json:"es_superusuario"`
	AuthKind    AuthKind `json:"tipo_autenticacion"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permisos"`
}

// HasPermission evaluates the permission predicate against this identity.
// Superusers and the wildcard code satisfy any requirement; otherwise every
// required code must be present.
func (cu *CurrentUser) HasPermission(required ...string) bool {
	if cu.Superuser {
		return true
	}
	held := make(map[string]struct{}, len(cu.Permissions))
	for _, p := range cu.Permissions {
		if p == PermissionWildcard {
			return true
		}
		held[p] = struct{}{}
	}
	for _, code := range required {
		if _, ok := held[code]; !ok {
			return false
		}
	}
	return true
}

// HasRole reports whether the identity carries any of the named roles.
func (cu *CurrentUser) HasRole(names ...string) bool {
	for _, want := range names {
		for _, have := range cu.Roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

// ExternalProfile carries the attributes an external identity provider
// reports for an authenticated principal.
type ExternalProfile struct {
	Username   string
	Email      string
	FullName   string
	Phone      string
	Department string
	Title      string
	EmployeeID string
	ExternalID string
	Kind       AuthKind
}

// LoginRequest represents a login request body.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// TokenPair is the response returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenValidationResponse is the body returned by POST /auth/validate.
type TokenValidationResponse struct {
	Valid  bool         `json:"valid"`
	User   *CurrentUser `json:"user,omitempty"`
	Reason string       `json:"reason,omitempty"`
}
