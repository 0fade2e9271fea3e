// Package events defines the todo change events published to the topic
// exchange and the publisher contract the service depends on.
package events

import (
	"context"
	"encoding/json"

	"todo-backend/pkg/circuitbreaker"
)

// Routing keys
const (
	TodoCreated             = "todo.created"
	TodoUpdated             = "todo.updated"
	TodoDeleted             = "todo.deleted"
	TodoAttachmentRequested = "todo.attachment_requested"
)

// Event 是发布到 exchange 的统一信封
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewEvent(eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Type: eventType,
		Data: data,
	}, nil
}

// TodoPayload identifies the todo a change event is about.
type TodoPayload struct {
	TodoID     string `json:"todo_id"`
	UserID     string `json:"user_id"`
	OccurredAt string `json:"occurred_at"`
}

// TodoCreatedPayload carries the stored todo's user-visible fields.
type TodoCreatedPayload struct {
	TodoPayload
	Name    string `json:"name"`
	DueDate string `json:"due_date"`
}

type TodoUpdatedPayload struct {
	TodoPayload
	Name    string `json:"name"`
	DueDate string `json:"due_date"`
	Done    bool   `json:"done"`
}

type TodoAttachmentRequestedPayload struct {
	TodoPayload
	AttachmentURL string `json:"attachment_url"`
}

// Publisher sends a payload under a routing key. *mq.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Noop discards every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

// Guarded publishes through a circuit breaker so that a broken broker
// connection is skipped quickly instead of failing every write's publish.
type Guarded struct {
	next    Publisher
	breaker *circuitbreaker.Breaker
}

func NewGuarded(next Publisher, breaker *circuitbreaker.Breaker) *Guarded {
	return &Guarded{next: next, breaker: breaker}
}

func (g *Guarded) Publish(ctx context.Context, routingKey string, payload any) error {
	return g.breaker.Do(func() error {
		return g.next.Publish(ctx, routingKey, payload)
	})
}
