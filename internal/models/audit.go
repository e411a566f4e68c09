package models

import (
	"encoding/json"
	"time"
)

// AuditKind classifies audit events.
type AuditKind string

const (
	AuditAuthentication AuditKind = "autenticacion"
	AuditAuthorization  AuditKind = "autorizacion"
	AuditDataAccess     AuditKind = "acceso_datos"
	AuditConfiguration  AuditKind = "configuracion"
	AuditSecurity       AuditKind = "seguridad"
	AuditSignalUpdate   AuditKind = "actualizacion_senal"
)

// Audit outcomes.
const (
	AuditOutcomeSuccess = "exito"
	AuditOutcomeError   = "error"
)

// AuditEvent is one append-only audit row. The actor is nullable so events
// survive deletion of the user that produced them.
type AuditEvent struct {
	ID        int64           `json:"id" db:"id"`
	ActorID   *int64          `json:"actor_id,omitempty" db:"id_usuario"`
	Kind      AuditKind       `json:"tipo" db:"tipo_evento"`
	Resource  string          `json:"recurso" db:"recurso"`
	Action    string          `json:"accion" db:"accion"`
	Outcome   string          `json:"resultado" db:"resultado"`
	IP        string          `json:"ip" db:"ip_origen"`
	UserAgent string          `json:"user_agent" db:"user_agent"`
	Details   json.RawMessage `json:"detalles,omitempty" db:"detalles"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// AuthDetail is the typed detail payload for authentication events.
type AuthDetail struct {
	Username string `json:"username"`
	Provider string `json:"provider,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// AccessDetail is the typed detail payload for authorization denials and
// per-request audit rows.
type AccessDetail struct {
	Method     string   `json:"method,omitempty"`
	Path       string   `json:"path,omitempty"`
	Status     int      `json:"status,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
	Required   []string `json:"required,omitempty"`
	RequestID  string   `json:"request_id,omitempty"`
}

// ConfigDetail is the typed detail payload for configuration changes.
type ConfigDetail struct {
	Key      string `json:"key,omitempty"`
	Entity   string `json:"entity,omitempty"`
	Name     string `json:"name,omitempty"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
}

// SignalDetail is the typed detail payload for signal update events.
type SignalDetail struct {
	SignalID     int64  `json:"signal_id"`
	FromCategory string `json:"from_category,omitempty"`
	ToCategory   string `json:"to_category,omitempty"`
	FromState    string `json:"from_state,omitempty"`
	ToState      string `json:"to_state,omitempty"`
	Description  string `json:"description,omitempty"`
}

// MarshalDetail encodes a typed detail payload for storage. A nil payload
// yields a nil blob rather than the JSON string "null".
func MarshalDetail(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
