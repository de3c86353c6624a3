package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// TopicJobs is the Kafka topic the Debezium Outbox SMT routes job
// envelopes to; the archive pipeline materializes them into ClickHouse.
const TopicJobs = "notify.jobs"

// OutboxEvent is one row destined for the outbox table.
type OutboxEvent struct {
	Aggregate   string
	AggregateID string
	Topic       string
	Payload     []byte
}

type OutboxRepository interface {
	// Insert writes the event inside tx when given, or in its own
	// short transaction when tx is nil.
	Insert(ctx context.Context, tx *sqlx.Tx, ev OutboxEvent) error
}

type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, ev OutboxEvent) error {
	const q = `
		INSERT INTO outbox (aggregate, aggregate_id, topic, payload, created_at)
		VALUES (?, ?, ?, ?, NOW())
	`
	if tx != nil {
		_, err := tx.ExecContext(ctx, q, ev.Aggregate, ev.AggregateID, ev.Topic, ev.Payload)
		return err
	}

	own, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := own.ExecContext(ctx, q, ev.Aggregate, ev.AggregateID, ev.Topic, ev.Payload); err != nil {
		_ = own.Rollback()
		return err
	}
	return own.Commit()
}
