package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/tutor-matching/internal/domain/entity"
)

// Event represents a domain event describing one workflow transition
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	EntityType    entity.EntityType      `json:"entity_type"`
	EntityID      string                 `json:"entity_id"`
	FromStatus    string                 `json:"from_status,omitempty"`
	ToStatus      string                 `json:"to_status"`
	ActorRole     entity.Role            `json:"actor_role"`
	ActorID       string                 `json:"actor_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// Transition names the entity and status edge an event describes
type Transition struct {
	EntityType entity.EntityType
	EntityID   string
	From       string
	To         string
}

// NewEvent creates a new domain event with auto-generated ID and timestamp
func NewEvent(eventType Type, tr Transition, actor entity.Actor, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, tr, actor, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, tr Transition, actor entity.Actor, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		EntityType:    tr.EntityType,
		EntityID:      tr.EntityID,
		FromStatus:    tr.From,
		ToStatus:      tr.To,
		ActorRole:     actor.Role,
		ActorID:       actor.ID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// FromOutbox rebuilds the domain event stored in an outbox record
func FromOutbox(rec *entity.OutboxEvent) *Event {
	payload := make(map[string]interface{}, len(rec.Payload))
	for k, v := range rec.Payload {
		payload[k] = v
	}
	return &Event{
		ID:            rec.ID,
		Type:          Type(rec.Type),
		EntityType:    rec.EntityType,
		EntityID:      rec.EntityID,
		FromStatus:    rec.FromStatus,
		ToStatus:      rec.ToStatus,
		ActorRole:     rec.ActorRole,
		ActorID:       rec.ActorID,
		Payload:       payload,
		Timestamp:     rec.OccurredAt,
		CorrelationID: rec.CorrelationID,
	}
}

// ToOutbox converts the event into a pending outbox record
func (e *Event) ToOutbox() *entity.OutboxEvent {
	payload := make(map[string]interface{}, len(e.Payload))
	for k, v := range e.Payload {
		payload[k] = v
	}
	return &entity.OutboxEvent{
		ID:             e.ID,
		Type:           e.Type.String(),
		EntityType:     e.EntityType,
		EntityID:       e.EntityID,
		FromStatus:     e.FromStatus,
		ToStatus:       e.ToStatus,
		ActorRole:      e.ActorRole,
		ActorID:        e.ActorID,
		Payload:        payload,
		CorrelationID:  e.CorrelationID,
		OccurredAt:     e.Timestamp,
		DeliveryStatus: entity.DeliveryStatusPending,
		NextAttemptAt:  e.Timestamp,
	}
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	c := *e
	c.Payload = newPayload
	return &c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
	}
	return 0
}

// GetPayloadBool retrieves a bool value from the payload
func (e *Event) GetPayloadBool(key string) bool {
	if val, ok := e.Payload[key]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
