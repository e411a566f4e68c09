package mqtt

import (
	"fmt"
	"strings"
)

// Topic layout: sds/{component}/{action}/{resource}. Consumers subscribe
// with wildcards on the action segment (e.g. "sds/senales/event/#").
const (
	// TopicPrefix is the root prefix for all platform topics
	TopicPrefix = "sds"

	// Components
	ComponentSignals  = "senales"
	ComponentAuth     = "auth"
	ComponentPlatform = "plataforma"

	// Actions
	ActionEvent  = "event"
	ActionStatus = "status"
	ActionHealth = "health"
)

// SignalEventTopic returns the topic for a signal domain event, e.g.
// sds/senales/event/cambio_categoria.
func SignalEventTopic(eventType string) string {
	return join(TopicPrefix, ComponentSignals, ActionEvent, eventType)
}

// AuthEventTopic returns the topic for an authentication domain event.
func AuthEventTopic(eventType string) string {
	return join(TopicPrefix, ComponentAuth, ActionEvent, eventType)
}

// HealthTopic returns the health publication topic for a service instance.
func HealthTopic(service string) string {
	return join(TopicPrefix, ComponentPlatform, ActionHealth, service)
}

// StatusTopic returns the status publication topic for a service instance.
func StatusTopic(service string) string {
	return join(TopicPrefix, ComponentPlatform, ActionStatus, service)
}

func join(parts ...string) string {
	return strings.Join(parts, "/")
}

// ParseTopic splits a platform topic into its segments after the prefix.
func ParseTopic(topic string) ([]string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != TopicPrefix {
		return nil, fmt.Errorf("invalid topic format: must start with %s", TopicPrefix)
	}
	return parts[1:], nil
}

// ValidTopic reports whether a topic follows the platform conventions.
func ValidTopic(topic string) bool {
	parts := strings.Split(topic, "/")
	return len(parts) >= 3 && parts[0] == TopicPrefix
}
