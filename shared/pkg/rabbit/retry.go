package rabbit

import (
	"context"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Sender publishes a raw body; *Publisher implements it.
type Sender interface {
	Publish(ctx context.Context, routingKey string, body []byte, headers amqp.Table) error
}

type Decision int

const (
	Retried Decision = iota + 1
	DeadLettered
)

func (d Decision) String() string {
	switch d {
	case Retried:
		return "retried"
	case DeadLettered:
		return "dead_lettered"
	default:
		return "unknown"
	}
}

func GetAttempts(h amqp.Table) int32 {
	if h == nil {
		return 0
	}
	v, ok := h[HeaderAttempts]
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case int8:
		return int32(t)
	case int16:
		return int32(t)
	case int32:
		return t
	case int64:
		return int32(t)
	case int:
		return int32(t)
	case float64:
		return int32(t)
	default:
		return 0
	}
}

// Retrier moves failed deliveries to the retry tiers or to the dead-letter queue.
// The original delivery is acked only after the republish succeeded; if the
// republish fails it is nacked with requeue so nothing is lost.
type Retrier struct {
	Service     string
	MaxAttempts int32
	RetryPub    Sender
	DLQPub      Sender
	DLQKey      string
}

// RetryOrDeadLetter schedules the next attempt, or dead-letters once
// MaxAttempts retries have been used.
func (r *Retrier) RetryOrDeadLetter(ctx context.Context, d amqp.Delivery, cause error) (Decision, error) {
	attempts := GetAttempts(d.Headers)
	if attempts >= r.MaxAttempts {
		return DeadLettered, r.DeadLetter(ctx, d, cause)
	}

	headers := carryHeaders(d)
	headers[HeaderAttempts] = attempts + 1

	if err := r.RetryPub.Publish(ctx, RetryRoutingKey(r.Service, attempts+1), d.Body, headers); err != nil {
		_ = d.Nack(false, true)
		return 0, fmt.Errorf("schedule retry: %w", err)
	}
	return Retried, d.Ack(false)
}

// DeadLetter publishes the untouched body to ExchangeDLX with the failure reason in headers.
func (r *Retrier) DeadLetter(ctx context.Context, d amqp.Delivery, cause error) error {
	headers := carryHeaders(d)
	headers[HeaderAttempts] = GetAttempts(d.Headers)
	if cause != nil {
		headers[HeaderError] = cause.Error()
	}

	if err := r.DLQPub.Publish(ctx, r.DLQKey, d.Body, headers); err != nil {
		_ = d.Nack(false, true)
		return fmt.Errorf("dead-letter: %w", err)
	}
	return d.Ack(false)
}

// carryHeaders copies application headers, drops broker dead-letter
// bookkeeping and records the routing key the event was first published with.
func carryHeaders(d amqp.Delivery) amqp.Table {
	out := amqp.Table{}
	for k, v := range d.Headers {
		if strings.HasPrefix(k, "x-death") || strings.HasPrefix(k, "x-first-death") || strings.HasPrefix(k, "x-last-death") {
			continue
		}
		out[k] = v
	}
	if _, ok := out[HeaderOriginalRoutingKey]; !ok {
		out[HeaderOriginalRoutingKey] = d.RoutingKey
	}
	if _, ok := out[HeaderEventID]; !ok && d.MessageId != "" {
		out[HeaderEventID] = d.MessageId
	}
	return out
}
