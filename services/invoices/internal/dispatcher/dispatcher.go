package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"orders-invoices/services/invoices/internal/metrics"
	"orders-invoices/shared/pkg/events"
	"orders-invoices/shared/pkg/rabbit"
)

var (
	ErrHandlerNotRegistered     = errors.New("no handler registered")
	ErrHandlerAlreadyRegistered = errors.New("handler already registered")
	ErrDeliveriesClosed         = errors.New("deliveries channel closed")
)

type Handler interface {
	Handle(ctx context.Context, env events.Envelope) error
}

type HandlerFunc func(ctx context.Context, env events.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env events.Envelope) error { return f(ctx, env) }

// Router sends a failed delivery to retry or dead-letter; *rabbit.Retrier implements it.
type Router interface {
	RetryOrDeadLetter(ctx context.Context, d amqp.Delivery, cause error) (rabbit.Decision, error)
	DeadLetter(ctx context.Context, d amqp.Delivery, cause error) error
}

type Outcome string

const (
	Acked        Outcome = "acked"
	Retried      Outcome = "retried"
	DeadLettered Outcome = "dead_lettered"
	// Requeued means moving the delivery to retry/dlq failed and the broker will redeliver it.
	Requeued Outcome = "requeued"
)

type Config struct {
	Service        string
	Workers        int
	HandlerTimeout time.Duration
}

type Dispatcher struct {
	log     zerolog.Logger
	cfg     Config
	schemas *events.Registry
	router  Router

	mu       sync.RWMutex
	handlers map[string]Handler
}

func New(log zerolog.Logger, schemas *events.Registry, router Router, cfg Config) *Dispatcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 10 * time.Second
	}
	return &Dispatcher{
		log:      log,
		cfg:      cfg,
		schemas:  schemas,
		router:   router,
		handlers: map[string]Handler{},
	}
}

func (d *Dispatcher) Register(eventType string, h Handler) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.handlers[eventType]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerAlreadyRegistered, eventType)
	}
	d.handlers[eventType] = h
	return nil
}

func (d *Dispatcher) handler(eventType string) (Handler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.handlers[eventType]
	return h, ok
}

// Run dispatches deliveries on cfg.Workers goroutines until ctx is done.
// It returns ErrDeliveriesClosed if the broker closes the channel.
func (d *Dispatcher) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	d.log.Info().Int("workers", d.cfg.Workers).Msg("dispatcher started")
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case del, ok := <-deliveries:
					if !ok {
						return ErrDeliveriesClosed
					}
					d.Dispatch(gctx, del)
				}
			}
		})
	}
	err := g.Wait()
	d.log.Info().Err(err).Msg("dispatcher stopped")
	return err
}

// Dispatch settles one delivery: ack on success, retry on transient failure,
// dead-letter on schema mismatch, missing handler, permanent failure or
// exhausted retries.
func (d *Dispatcher) Dispatch(ctx context.Context, del amqp.Delivery) Outcome {
	// a delivery in flight is finished even during shutdown
	ctx = context.WithoutCancel(ctx)

	env, err := events.Decode(del.Body)
	if err == nil {
		err = d.schemas.Validate(env)
	}
	if err != nil {
		reason := "schema_mismatch"
		if errors.Is(err, events.ErrUnknownEventType) {
			reason = "unknown_type"
		}
		return d.deadLetter(ctx, del, env, reason, err)
	}

	h, ok := d.handler(env.EventType)
	if !ok {
		return d.deadLetter(ctx, del, env, "no_handler", fmt.Errorf("%w: %s", ErrHandlerNotRegistered, env.EventType))
	}

	hctx, cancel := context.WithTimeout(ctx, d.cfg.HandlerTimeout)
	start := time.Now()
	err = h.Handle(hctx, env)
	cancel()
	metrics.HandlerDuration.WithLabelValues(d.cfg.Service, env.EventType).Observe(time.Since(start).Seconds())

	if err == nil {
		if ackErr := del.Ack(false); ackErr != nil {
			d.log.Error().Err(ackErr).Str("event_id", env.EventID).Msg("ack failed")
		}
		return d.settled(env, Acked)
	}

	if !events.IsRetriable(err) {
		reason := "permanent"
		if errors.Is(err, events.ErrSchemaMismatch) {
			reason = "schema_mismatch"
		}
		return d.deadLetter(ctx, del, env, reason, err)
	}

	attempts := rabbit.GetAttempts(del.Headers)
	dec, rerr := d.router.RetryOrDeadLetter(ctx, del, err)
	if rerr != nil {
		d.log.Error().Err(rerr).AnErr("cause", err).Str("event_id", env.EventID).Msg("retry routing failed, requeued")
		return d.settled(env, Requeued)
	}
	if dec == rabbit.DeadLettered {
		metrics.EventsDeadLetteredTotal.WithLabelValues(d.cfg.Service, "retries_exhausted").Inc()
		d.log.Error().Err(err).
			Str("event_id", env.EventID).
			Str("event_type", env.EventType).
			Int32("attempts", attempts).
			Bool("alert", true).
			Msg("retries exhausted, event dead-lettered")
		return d.settled(env, DeadLettered)
	}

	metrics.EventsRetriedTotal.WithLabelValues(d.cfg.Service, env.EventType).Inc()
	d.log.Warn().Err(err).
		Str("event_id", env.EventID).
		Str("event_type", env.EventType).
		Int32("attempts", attempts+1).
		Msg("handler failed, retry scheduled")
	return d.settled(env, Retried)
}

func (d *Dispatcher) deadLetter(ctx context.Context, del amqp.Delivery, env events.Envelope, reason string, cause error) Outcome {
	if err := d.router.DeadLetter(ctx, del, cause); err != nil {
		d.log.Error().Err(err).AnErr("cause", cause).Str("routing_key", del.RoutingKey).Msg("dead-letter failed, requeued")
		return d.settled(env, Requeued)
	}
	metrics.EventsDeadLetteredTotal.WithLabelValues(d.cfg.Service, reason).Inc()
	d.log.Error().Err(cause).
		Str("event_id", env.EventID).
		Str("event_type", env.EventType).
		Str("routing_key", del.RoutingKey).
		Str("reason", reason).
		Msg("event dead-lettered")
	return d.settled(env, DeadLettered)
}

func (d *Dispatcher) settled(env events.Envelope, o Outcome) Outcome {
	eventType := env.EventType
	if eventType == "" {
		eventType = "unknown"
	}
	metrics.EventsConsumedTotal.WithLabelValues(d.cfg.Service, eventType, string(o)).Inc()
	return o
}
