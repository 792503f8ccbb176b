package entity

import "time"

// OutboxEvent is the append-only record of one workflow operation.
// The event fields are immutable; only the delivery bookkeeping changes.
type OutboxEvent struct {
	ID            string                 `json:"id"`
	Type          string                 `json:"type"`
	EntityType    EntityType             `json:"entity_type"`
	EntityID      string                 `json:"entity_id"`
	FromStatus    string                 `json:"from_status,omitempty"`
	ToStatus      string                 `json:"to_status"`
	ActorRole     Role                   `json:"actor_role"`
	ActorID       string                 `json:"actor_id,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	CorrelationID string                 `json:"correlation_id"`
	OccurredAt    time.Time              `json:"occurred_at"`

	DeliveryStatus string     `json:"delivery_status"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"last_error,omitempty"`
	NextAttemptAt  time.Time  `json:"next_attempt_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
}

// Clone returns a copy with its own payload map
func (e *OutboxEvent) Clone() *OutboxEvent {
	if e == nil {
		return nil
	}
	c := *e
	if e.Payload != nil {
		c.Payload = make(map[string]interface{}, len(e.Payload))
		for k, v := range e.Payload {
			c.Payload[k] = v
		}
	}
	if e.DeliveredAt != nil {
		t := *e.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}
