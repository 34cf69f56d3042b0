package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orders-invoices/shared/pkg/events"
)

type Entry struct {
	EventID     string
	EventType   string
	AggregateID string
	Payload     []byte
	OccurredAt  time.Time
	Attempts    int
}

// Envelope rebuilds the envelope exactly as it was enqueued, same eventId.
func (e Entry) Envelope() events.Envelope {
	return events.Envelope{
		EventType:  e.EventType,
		EventID:    e.EventID,
		OccurredAt: e.OccurredAt.UTC(),
		Payload:    json.RawMessage(e.Payload),
	}
}

// Batch is a set of claimed entries. Rows stay locked until Commit or Rollback.
type Batch interface {
	Entries() []Entry
	MarkPublished(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, next time.Time, reason string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type Store interface {
	Claim(ctx context.Context, limit int) (Batch, error)
	CountPending(ctx context.Context) (int, error)
}

type PGStore struct {
	DB *pgxpool.Pool
}

// Claim locks up to limit due rows. skip locked lets several relays run side by side.
func (s *PGStore) Claim(ctx context.Context, limit int) (Batch, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		select event_id::text, event_type, aggregate_id::text, payload::text, occurred_at, attempts
		from outbox_events
		where published_at is null and next_attempt_at <= now()
		order by created_at
		limit $1
		for update skip locked
	`, limit)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		var payload string
		err := row.Scan(&e.EventID, &e.EventType, &e.AggregateID, &payload, &e.OccurredAt, &e.Attempts)
		e.Payload = []byte(payload)
		return e, err
	})
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, err
	}
	return &pgBatch{tx: tx, entries: entries}, nil
}

func (s *PGStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `select count(*) from outbox_events where published_at is null`).Scan(&n)
	return n, err
}

type pgBatch struct {
	tx      pgx.Tx
	entries []Entry
}

func (b *pgBatch) Entries() []Entry { return b.entries }

func (b *pgBatch) MarkPublished(ctx context.Context, eventID string) error {
	_, err := b.tx.Exec(ctx, `update outbox_events set published_at = now(), last_error = null where event_id = $1::uuid`, eventID)
	return err
}

func (b *pgBatch) MarkFailed(ctx context.Context, eventID string, next time.Time, reason string) error {
	_, err := b.tx.Exec(ctx, `
		update outbox_events
		set attempts = attempts + 1,
		    next_attempt_at = $2,
		    last_error = $3
		where event_id = $1::uuid
	`, eventID, next, reason)
	return err
}

func (b *pgBatch) Commit(ctx context.Context) error   { return b.tx.Commit(ctx) }
func (b *pgBatch) Rollback(ctx context.Context) error { return b.tx.Rollback(ctx) }
