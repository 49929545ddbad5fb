package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/orderflow/saga-system/shared/models"
)

var (
	ErrInvalidTopic    = errors.New("invalid topic")
	ErrInvalidReceiver = errors.New("receiver should be a pointer")
)

// Topic represents an event topic with pattern matching support
type Topic string

func NewTopic(topic string) (Topic, error) {
	if topic == "" {
		return "", ErrInvalidTopic
	}
	return Topic(topic), nil
}

func (t Topic) String() string {
	return string(t)
}

// Matches reports whether the topic matches the given pattern. Patterns
// support "*" for a single segment and "#" for any number of segments.
func (t Topic) Matches(pattern Topic) bool {
	patternParts := strings.Split(pattern.String(), ".")
	topicParts := strings.Split(t.String(), ".")
	return matchPattern(patternParts, topicParts)
}

func matchPattern(patternParts, topicParts []string) bool {
	if len(patternParts) == 1 && patternParts[0] == "#" {
		return true
	}

	if len(patternParts) != len(topicParts) {
		return false
	}

	if len(patternParts) == 0 {
		return true
	}

	if patternParts[0] == "*" || patternParts[0] == topicParts[0] {
		return matchPattern(patternParts[1:], topicParts[1:])
	}

	return false
}

// Metadata represents event metadata
type Metadata map[string]string

func (m Metadata) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

func (m Metadata) Set(key string, value string) {
	m[key] = value
}

func (m Metadata) Clone() Metadata {
	clone := Metadata{}
	for k, v := range m {
		clone[k] = v
	}
	return clone
}

// Event represents a domain event
type Event struct {
	ID            models.ID   `json:"id"`
	AggregateID   models.ID   `json:"aggregate_id"`
	Topic         Topic       `json:"topic"`
	Version       string      `json:"version"`
	Data          interface{} `json:"data"`
	Metadata      Metadata    `json:"metadata"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID models.ID   `json:"correlation_id"`
}

// Publisher publishes events
type Publisher interface {
	Publish(ctx context.Context, events ...*Event) error
}

// Subscriber subscribes to events
type Subscriber interface {
	Subscribe(ctx context.Context, eventType string, handler EventHandler) error
}

// EventHandler handles domain events
type EventHandler interface {
	Handle(ctx context.Context, event *Event) error
}

// EventStore stores and retrieves events
type EventStore interface {
	SaveEvents(ctx context.Context, aggregateID models.ID, events []*Event, expectedVersion int) error
	GetEvents(ctx context.Context, aggregateID models.ID) ([]*Event, error)
	GetEventsByType(ctx context.Context, eventType string, offset, limit int) ([]*Event, error)
}

// NewEvent creates a new domain event
func NewEvent(aggregateID models.ID, topic Topic, data interface{}) *Event {
	return &Event{
		ID:          models.GenerateUUID(),
		AggregateID: aggregateID,
		Topic:       topic,
		Version:     "1.0",
		Data:        data,
		Metadata:    make(Metadata),
		Timestamp:   time.Now(),
	}
}

// WithCorrelationID sets correlation ID
func (e *Event) WithCorrelationID(correlationID models.ID) *Event {
	e.CorrelationID = correlationID
	return e
}

// WithMetadata adds metadata
func (e *Event) WithMetadata(key string, value string) *Event {
	if e.Metadata == nil {
		e.Metadata = make(Metadata)
	}
	e.Metadata.Set(key, value)
	return e
}

// MarshalPayload marshals the event payload
func (e *Event) MarshalPayload() (json.RawMessage, error) {
	if b, ok := e.Data.([]byte); ok {
		return b, nil
	}

	if b, ok := e.Data.(json.RawMessage); ok {
		return b, nil
	}

	return json.Marshal(e.Data)
}

// UnmarshalPayload unmarshals the event payload into the given receiver
func (e *Event) UnmarshalPayload(v interface{}) error {
	if b, ok := e.Data.([]byte); ok {
		return json.Unmarshal(b, v)
	}

	if b, ok := e.Data.(json.RawMessage); ok {
		return json.Unmarshal([]byte(b), v)
	}

	raw, err := e.MarshalPayload()
	if err != nil {
		return err
	}

	return json.Unmarshal(raw, v)
}

// Payload returns the event data as a generic map, marshalling through JSON
// when the data was produced in-process as a typed value.
func (e *Event) Payload() (map[string]interface{}, error) {
	if m, ok := e.Data.(map[string]interface{}); ok {
		return m, nil
	}

	var m map[string]interface{}
	if err := e.UnmarshalPayload(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// Clone creates a copy of the event
func (e *Event) Clone() *Event {
	return &Event{
		ID:            e.ID,
		AggregateID:   e.AggregateID,
		Topic:         e.Topic,
		Version:       e.Version,
		Data:          e.Data,
		Metadata:      e.Metadata.Clone(),
		Timestamp:     e.Timestamp,
		CorrelationID: e.CorrelationID,
	}
}

// Topic constants for the order fulfillment flow.
//
// Request topics are commands consumed by a participant service; the
// matching past-tense topics are the completion or failure events it
// publishes back.
const (
	// Order participant
	OrderCreateRequestedTopic  Topic = "order.create.requested"
	OrderCreatedTopic          Topic = "order.created"
	OrderCreateFailedTopic     Topic = "order.create.failed"
	OrderCancelRequestedTopic  Topic = "order.cancel.requested"
	OrderCancelledTopic        Topic = "order.cancelled"
	OrderConfirmRequestedTopic Topic = "order.confirm.requested"
	OrderConfirmedTopic        Topic = "order.confirmed"
	OrderConfirmFailedTopic    Topic = "order.confirm.failed"

	// Inventory participant
	InventoryReserveRequestedTopic Topic = "inventory.reserve.requested"
	InventoryReservedTopic         Topic = "inventory.reserved"
	InventoryReserveFailedTopic    Topic = "inventory.reserve.failed"
	InventoryReleaseRequestedTopic Topic = "inventory.release.requested"
	InventoryReleasedTopic         Topic = "inventory.released"

	// Payment participant
	PaymentProcessRequestedTopic Topic = "payment.process.requested"
	PaymentProcessedTopic        Topic = "payment.processed"
	PaymentFailedTopic           Topic = "payment.failed"
	PaymentRefundRequestedTopic  Topic = "payment.refund.requested"
	PaymentRefundedTopic         Topic = "payment.refunded"

	// Saga lifecycle
	SagaStartedTopic     Topic = "saga.started"
	SagaCompletedTopic   Topic = "saga.completed"
	SagaCompensatedTopic Topic = "saga.compensated"
)
