package mqtt

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MessageType classifies an envelope.
type MessageType string

const (
	MessageTypeEvent  MessageType = "event"
	MessageTypeStatus MessageType = "status"
	MessageTypeHealth MessageType = "health"
)

// Message is the envelope for every payload published on the bus.
type Message struct {
	// ID is a unique identifier for this message
	ID string `json:"id"`
	// Type indicates the message type
	Type MessageType `json:"type"`
	// Source identifies the publishing service instance
	Source string `json:"source"`
	// Timestamp when the message was created (UTC)
	Timestamp time.Time `json:"timestamp"`
	// Payload contains the actual message data as JSON
	Payload json.RawMessage `json:"payload"`
}

// NewMessage wraps a payload into an envelope.
func NewMessage(msgType MessageType, source string, payload any) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        uuid.NewString(),
		Type:      msgType,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

// UnmarshalPayload deserializes the payload into the provided structure.
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// SignalCategoryChangedEvent is published on every human-confirmed category
// reclassification so downstream consumers can react without polling.
type SignalCategoryChangedEvent struct {
	SignalID     int64     `json:"id_senal"`
	FromCategory string    `json:"categoria_anterior"`
	ToCategory   string    `json:"categoria_nueva"`
	Actor        string    `json:"actor"`
	OccurredAt   time.Time `json:"fecha"`
}

// HealthEvent is the periodic health publication payload.
type HealthEvent struct {
	Service string         `json:"service"`
	Status  string         `json:"status"`
	Checks  map[string]any `json:"checks,omitempty"`
}
