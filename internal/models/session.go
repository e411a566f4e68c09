package models

import "time"

// Session invalidation reasons recorded when a session stops being valid.
const (
	InvalidationLogout      = "logout"
	InvalidationAdminReset  = "admin_reset"
	InvalidationAutoExpired = "auto_expired"
	InvalidationSessionCap  = "session_cap"
	InvalidationRefresh     = "refreshed"
)

// Session is a persistent record of one issued token pair.
type Session struct {
	ID                 string     `json:"id" db:"id"`
	UserID             int64      `json:"user_id" db:"id_usuario"`
	AccessToken        string     `json:"-" db:"token_acceso"`
	RefreshToken       string     `json:"-" db:"token_refresco"`
	AccessExpiresAt    time.Time  `json:"access_expires_at" db:"expira_acceso"`
	RefreshExpiresAt   time.Time  `json:"refresh_expires_at" db:"expira_refresco"`
	Valid              bool       `json:"valid" db:"valida"`
	IP                 string     `json:"ip" db:"ip_origen"`
	UserAgent          string     `json:"user_agent" db:"user_agent"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	LastAccessAt       time.Time  `json:"last_access_at" db:"ultimo_acceso"`
	InvalidatedAt      *time.Time `json:"invalidated_at,omitempty" db:"invalidada_en"`
	InvalidationReason *string    `json:"invalidation_reason,omitempty" db:"motivo_invalidacion"`
}

// Active reports whether the session can still be used or refreshed.
func (s *Session) Active(now time.Time) bool {
	return s.Valid && s.RefreshExpiresAt.After(now)
}

// PasswordHistoryEntry stores one prior password hash for reuse checks.
type PasswordHistoryEntry struct {
	ID           int64     `json:"id" db:"id"`
	UserID       int64     `json:"user_id" db:"id_usuario"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
