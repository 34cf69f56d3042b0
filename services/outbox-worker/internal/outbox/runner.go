package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"orders-invoices/services/outbox-worker/internal/metrics"
	"orders-invoices/shared/pkg/backoff"
	"orders-invoices/shared/pkg/eventbus"
	"orders-invoices/shared/pkg/events"
)

type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Runner relays committed outbox rows to the broker. Rows are retried with
// backoff until the broker accepts them; nothing is ever dropped.
type Runner struct {
	Log       zerolog.Logger
	Store     Store
	Publisher Publisher

	PollInterval time.Duration
	BatchSize    int
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	AlertAfter   int
	// TickBudget bounds how long one batch may hold its row locks; rows not
	// reached in time stay pending for the next tick. Zero disables it.
	TickBudget   time.Duration

	now func() time.Time
}

func (r *Runner) Run(ctx context.Context) {
	t := time.NewTicker(r.PollInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Log.Info().Msg("outbox runner stopped")
			return
		case <-t.C:
			if _, err := r.Tick(ctx); err != nil && ctx.Err() == nil {
				r.Log.Error().Err(err).Msg("outbox tick failed")
			}
		}
	}
}

// Tick relays one batch and returns how many events were published.
func (r *Runner) Tick(ctx context.Context) (int, error) {
	r.updatePending(ctx)

	batch, err := r.Store.Claim(ctx, r.BatchSize)
	if err != nil {
		return 0, err
	}
	defer func() { _ = batch.Rollback(ctx) }()

	deadline := r.clock().Add(r.TickBudget)
	published := 0
	for i, e := range batch.Entries() {
		if r.TickBudget > 0 && !r.clock().Before(deadline) {
			r.Log.Warn().Int("deferred", len(batch.Entries())-i).Msg("tick budget spent, releasing rest of batch")
			break
		}

		err := r.Publisher.Publish(ctx, e.Envelope())
		if err == nil {
			if err := batch.MarkPublished(ctx, e.EventID); err != nil {
				return published, err
			}
			metrics.OutboxSentTotal.WithLabelValues(e.EventType).Inc()
			published++
			continue
		}

		metrics.OutboxPublishErrorsTotal.WithLabelValues(e.EventType).Inc()
		if errors.Is(err, eventbus.ErrBreakerOpen) {
			// broker known to be down; leave the rest untouched until the breaker half-opens
			r.Log.Warn().Str("event_id", e.EventID).Msg("publisher circuit open, batch paused")
			break
		}

		attempts := e.Attempts + 1
		next := r.clock().Add(backoff.WithJitter(backoff.Exponential(r.BackoffBase, attempts-1, r.BackoffMax)))
		if err := batch.MarkFailed(ctx, e.EventID, next, err.Error()); err != nil {
			return published, err
		}

		ev := r.Log.Warn()
		if r.AlertAfter > 0 && attempts >= r.AlertAfter {
			metrics.OutboxStuckTotal.Inc()
			ev = r.Log.Error()
		}
		ev.Err(err).
			Str("event_id", e.EventID).
			Str("event_type", e.EventType).
			Str("order_id", e.AggregateID).
			Int("attempts", attempts).
			Time("next", next).
			Msg("publish failed -> retry scheduled")
	}

	return published, batch.Commit(ctx)
}

func (r *Runner) updatePending(ctx context.Context) {
	ctx2, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := r.Store.CountPending(ctx2)
	if err != nil {
		r.Log.Debug().Err(err).Msg("count pending failed")
		return
	}
	metrics.OutboxPending.Set(float64(n))
}

func (r *Runner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
