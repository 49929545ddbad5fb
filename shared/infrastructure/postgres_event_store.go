package infrastructure

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/orderflow/saga-system/shared/events"
	"github.com/orderflow/saga-system/shared/models"
)

// PostgresEventStore implements events.EventStore using PostgreSQL
type PostgresEventStore struct {
	db *sqlx.DB
}

// NewPostgresEventStore creates a new PostgresEventStore
func NewPostgresEventStore(db *sqlx.DB) *PostgresEventStore {
	return &PostgresEventStore{db: db}
}

type postgresEvent struct {
	ID            string    `db:"id"`
	AggregateID   string    `db:"aggregate_id"`
	Topic         string    `db:"topic"`
	Version       string    `db:"version"`
	Data          []byte    `db:"data"`
	Metadata      []byte    `db:"metadata"`
	Timestamp     time.Time `db:"timestamp"`
	CorrelationID string    `db:"correlation_id"`
	StreamVersion int       `db:"stream_version"`
}

// SaveEvents appends events to the aggregate's stream with optimistic
// concurrency on the expected stream version.
func (es *PostgresEventStore) SaveEvents(ctx context.Context, aggregateID models.ID, evts []*events.Event, expectedVersion int) error {
	if len(evts) == 0 {
		return nil
	}

	tx, err := es.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var currentVersion int
	err = tx.GetContext(ctx, &currentVersion,
		"SELECT COALESCE(MAX(stream_version), 0) FROM event_stream WHERE aggregate_id = $1",
		aggregateID.String())
	if err != nil && err != sql.ErrNoRows {
		return errors.Wrap(err, "failed to get current version")
	}

	if currentVersion != expectedVersion {
		return errors.Errorf("concurrency conflict: expected version %d, got %d", expectedVersion, currentVersion)
	}

	for i, event := range evts {
		pgEvent, err := es.toPostgres(event, currentVersion+i+1)
		if err != nil {
			return errors.Wrap(err, "failed to convert event")
		}

		query := `
			INSERT INTO event_stream (
				id, aggregate_id, topic, version, data, metadata,
				timestamp, correlation_id, stream_version
			) VALUES (
				:id, :aggregate_id, :topic, :version, :data, :metadata,
				:timestamp, :correlation_id, :stream_version
			)`

		_, err = tx.NamedExecContext(ctx, query, pgEvent)
		if err != nil {
			return errors.Wrap(err, "failed to insert event")
		}
	}

	return tx.Commit()
}

// GetEvents retrieves all events for an aggregate in stream order
func (es *PostgresEventStore) GetEvents(ctx context.Context, aggregateID models.ID) ([]*events.Event, error) {
	query := `
		SELECT id, aggregate_id, topic, version, data, metadata,
			   timestamp, correlation_id, stream_version
		FROM event_stream
		WHERE aggregate_id = $1
		ORDER BY stream_version ASC`

	var pgEvents []postgresEvent
	err := es.db.SelectContext(ctx, &pgEvents, query, aggregateID.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to get events")
	}

	return es.toDomainAll(pgEvents)
}

// GetEventsByType retrieves events on a topic with pagination
func (es *PostgresEventStore) GetEventsByType(ctx context.Context, eventType string, offset, limit int) ([]*events.Event, error) {
	query := `
		SELECT id, aggregate_id, topic, version, data, metadata,
			   timestamp, correlation_id, stream_version
		FROM event_stream
		WHERE topic = $1
		ORDER BY timestamp ASC
		LIMIT $2 OFFSET $3`

	var pgEvents []postgresEvent
	err := es.db.SelectContext(ctx, &pgEvents, query, eventType, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get events by topic")
	}

	return es.toDomainAll(pgEvents)
}

func (es *PostgresEventStore) toDomainAll(pgEvents []postgresEvent) ([]*events.Event, error) {
	out := make([]*events.Event, len(pgEvents))
	for i, pgEvent := range pgEvents {
		event, err := es.toDomain(&pgEvent)
		if err != nil {
			return nil, err
		}
		out[i] = event
	}
	return out, nil
}

func (es *PostgresEventStore) toPostgres(event *events.Event, streamVersion int) (*postgresEvent, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event data")
	}

	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal event metadata")
	}

	return &postgresEvent{
		ID:            event.ID.String(),
		AggregateID:   event.AggregateID.String(),
		Topic:         string(event.Topic),
		Version:       event.Version,
		Data:          data,
		Metadata:      metadata,
		Timestamp:     event.Timestamp,
		CorrelationID: event.CorrelationID.String(),
		StreamVersion: streamVersion,
	}, nil
}

func (es *PostgresEventStore) toDomain(pgEvent *postgresEvent) (*events.Event, error) {
	id, err := models.NewID(pgEvent.ID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid event ID")
	}

	aggregateID, err := models.NewID(pgEvent.AggregateID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid aggregate ID")
	}

	var data interface{}
	if err := json.Unmarshal(pgEvent.Data, &data); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal event data")
	}

	var rawMetadata map[string]interface{}
	if err := json.Unmarshal(pgEvent.Metadata, &rawMetadata); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal event metadata")
	}

	metadata := make(events.Metadata)
	for k, v := range rawMetadata {
		if str, ok := v.(string); ok {
			metadata.Set(k, str)
		} else {
			metadata.Set(k, fmt.Sprintf("%v", v))
		}
	}

	var correlationID models.ID
	if pgEvent.CorrelationID != "" {
		correlationID, err = models.NewID(pgEvent.CorrelationID)
		if err != nil {
			return nil, errors.Wrap(err, "invalid correlation ID")
		}
	}

	topic, err := events.NewTopic(pgEvent.Topic)
	if err != nil {
		return nil, errors.Wrap(err, "invalid topic")
	}

	return &events.Event{
		ID:            id,
		AggregateID:   aggregateID,
		Topic:         topic,
		Version:       pgEvent.Version,
		Data:          data,
		Metadata:      metadata,
		Timestamp:     pgEvent.Timestamp,
		CorrelationID: correlationID,
	}, nil
}
