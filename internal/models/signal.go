package models

import (
	"encoding/json"
	"time"
)

// SignalState is the lifecycle tag of a detected signal.
type SignalState string

const (
	StateDetected  SignalState = "DETECTADA"
	StateInReview  SignalState = "EN_REVISION"
	StateValidated SignalState = "VALIDADA"
	StateResolved  SignalState = "RESUELTA"
	StateRejected  SignalState = "RECHAZADA"
)

// signalTransitions is the checked transition table. Terminal states have no
// outgoing edges; writing the current state back is always allowed.
var signalTransitions = map[SignalState][]SignalState{
	StateDetected:  {StateInReview, StateRejected},
	StateInReview:  {StateValidated, StateRejected},
	StateValidated: {StateResolved, StateRejected},
	StateResolved:  {},
	StateRejected:  {},
}

// Valid reports whether s is a known signal state.
func (s SignalState) Valid() bool {
	_, ok := signalTransitions[s]
	return ok
}

// CanTransitionTo reports whether the state machine permits moving to next.
func (s SignalState) CanTransitionTo(next SignalState) bool {
	if s == next {
		return true
	}
	for _, allowed := range signalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Signal is a detected-content record with a computed risk score.
type Signal struct {
	ID              int64           `json:"id" db:"id"`
	DetectedAt      time.Time       `json:"fecha_deteccion" db:"fecha_deteccion"`
	RiskScore       float64         `json:"puntaje_riesgo" db:"puntaje_riesgo"`
	CategoryID      int64           `json:"id_categoria_senal" db:"id_categoria_senal"`
	AnalysisID      int64           `json:"id_categoria_analisis" db:"id_categoria_analisis"`
	State           SignalState     `json:"estado" db:"estado"`
	AssignedUserID  *int64          `json:"id_usuario_asignado,omitempty" db:"id_usuario_asignado"`
	ResolvedAt      *time.Time      `json:"fecha_resolucion,omitempty" db:"fecha_resolucion"`
	ResolutionNotes *string         `json:"notas_resolucion,omitempty" db:"notas_resolucion"`
	Content         json.RawMessage `json:"contenido,omitempty" db:"contenido"`
	Platforms       json.RawMessage `json:"plataformas,omitempty" db:"plataformas"`
	Metadata        json.RawMessage `json:"metadatos,omitempty" db:"metadatos"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"fecha_actualizacion" db:"fecha_actualizacion"`
}

// SignalView is the query-side representation with resolved names and color.
type SignalView struct {
	Signal
	CategoryName string `json:"categoria_senal"`
	AnalysisName string `json:"categoria_analisis"`
	Color        string `json:"color"`
}

// SignalCategory is a hierarchical classification with display color and
// optional score thresholds.
type SignalCategory struct {
	ID        int64    `json:"id" db:"id"`
	Name      string   `json:"nombre" db:"nombre"`
	ParentID  *int64   `json:"id_padre,omitempty" db:"id_padre"`
	Level     int      `json:"nivel" db:"nivel"`
	Color     string   `json:"color" db:"color"`
	ScoreLow  *float64 `json:"umbral_inferior,omitempty" db:"umbral_inferior"`
	ScoreHigh *float64 `json:"umbral_superior,omitempty" db:"umbral_superior"`
	Active    bool     `json:"activo" db:"activo"`
}

// AnalysisCategory is the kind of phenomenon a signal concerns.
type AnalysisCategory struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"nombre" db:"nombre"`
	Description string `json:"descripcion" db:"descripcion"`
	Active      bool   `json:"activo" db:"activo"`
}

// SignalHistoryAction is the action tag recorded on state updates.
const SignalHistoryAction = "Actualizacion_estado_señal"

// SignalHistoryEntry is one append-only per-signal trazability row.
type SignalHistoryEntry struct {
	ID          int64           `json:"id" db:"id"`
	SignalID    int64           `json:"id_senal" db:"id_senal"`
	ActorID     *int64          `json:"id_usuario,omitempty" db:"id_usuario"`
	Action      string          `json:"accion" db:"accion"`
	Description string          `json:"descripcion" db:"descripcion"`
	OldState    *string         `json:"estado_anterior,omitempty" db:"estado_anterior"`
	NewState    *string         `json:"estado_nuevo,omitempty" db:"estado_nuevo"`
	Delta       json.RawMessage `json:"delta,omitempty" db:"delta"`
	IP          string          `json:"ip" db:"ip_origen"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// SignalUpdate carries one update operation against a signal. Pointer fields
// are applied only when supplied.
type SignalUpdate struct {
	AnalysisID        *int64       `json:"id_categoria_analisis,omitempty"`
	CategoryID        *int64       `json:"id_categoria_senal,omitempty"`
	RiskScore         *float64     `json:"puntaje_riesgo,omitempty"`
	DetectedAt        *time.Time   `json:"fecha_deteccion,omitempty"`
	State             *SignalState `json:"estado,omitempty"`
	AssignedUserID    *int64       `json:"id_usuario_asignado,omitempty"`
	ResolutionNotes   *string      `json:"notas_resolucion,omitempty"`
	ChangeDescription string       `json:"descripcion_cambio,omitempty"`
	RevisionConfirmed bool         `json:"confirmo_revision,omitempty"`
}
