package repo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"orders-invoices/shared/pkg/events"
)

type OutboxPG struct{}

// Enqueue writes env into outbox_events within tx. The relay publishes it
// later with the same eventId.
func (o *OutboxPG) Enqueue(ctx context.Context, tx pgx.Tx, aggregateID string, env events.Envelope) error {
	_, err := tx.Exec(ctx, `
		insert into outbox_events(
			event_id, event_type, aggregate_id, payload, occurred_at,
			attempts, next_attempt_at, created_at
		)
		values ($1::uuid, $2, $3::uuid, $4::jsonb, $5, 0, now(), now())
	`, env.EventID, env.EventType, aggregateID, string(env.Payload), env.OccurredAt)
	return err
}
