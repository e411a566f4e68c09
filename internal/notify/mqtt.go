package notify

import (
	"fmt"

	"github.com/sds-platform/sds-core/internal/engines/signals"
	"github.com/sds-platform/sds-core/pkg/mqtt"
	"go.uber.org/zap"
)

// EventPublisher mirrors signal events onto the MQTT bus.
type EventPublisher struct {
	client *mqtt.Client
	source string
	logger *zap.Logger
}

// NewEventPublisher wraps an MQTT client. source names the publishing
// service instance and ends up in every envelope.
func NewEventPublisher(client *mqtt.Client, source string, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{client: client, source: source, logger: logger}
}

// PublishCategoryChange publishes a confirmed reclassification with QoS 1 so
// consumers see it at least once.
func (p *EventPublisher) PublishCategoryChange(change signals.CategoryChange) error {
	msg, err := mqtt.NewMessage(mqtt.MessageTypeEvent, p.source, mqtt.SignalCategoryChangedEvent{
		SignalID:     change.SignalID,
		FromCategory: change.FromCategory,
		ToCategory:   change.ToCategory,
		Actor:        change.ActorEmail,
		OccurredAt:   change.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to build event envelope: %w", err)
	}
	return p.client.PublishJSON(mqtt.SignalEventTopic("cambio_categoria"), 1, false, msg)
}
