package eventbus

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"orders-invoices/shared/pkg/events"
	"orders-invoices/shared/pkg/rabbit"
)

// ErrBreakerOpen is returned (wrapped in events.ErrPublishFailed) while the
// transport is considered down and publishes are short-circuited.
var ErrBreakerOpen = errors.New("publisher circuit open")

type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// Publisher hands envelopes to the transport. Routing key is the event type.
type Publisher struct {
	log       zerolog.Logger
	transport rabbit.Sender
	breaker   *gobreaker.CircuitBreaker
}

func NewPublisher(log zerolog.Logger, transport rabbit.Sender, cfg BreakerConfig) *Publisher {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	p := &Publisher{log: log, transport: transport}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "eventbus-publish",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("publisher breaker state changed")
		},
	})
	return p
}

// Publish returns nil once the transport durably accepted env, otherwise an
// error wrapping events.ErrPublishFailed. It does not wait for consumers.
func (p *Publisher) Publish(ctx context.Context, env events.Envelope) error {
	body, err := env.Encode()
	if err != nil {
		return fmt.Errorf("%w: encode: %w", events.ErrPublishFailed, err)
	}

	headers := amqp.Table{
		rabbit.HeaderEventID:   env.EventID,
		rabbit.HeaderEventType: env.EventType,
	}

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.transport.Publish(ctx, env.EventType, body, headers)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", events.ErrPublishFailed, ErrBreakerOpen)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", events.ErrPublishFailed, err)
	}
	return nil
}
