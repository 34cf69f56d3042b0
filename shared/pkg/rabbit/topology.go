package rabbit

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"orders-invoices/shared/pkg/backoff"
)

const (
	ExchangeEvents = "orders.events"
	ExchangeRetry  = "orders.retry"
	ExchangeDLX    = "orders.dlx"
)

const (
	HeaderAttempts           = "x-attempts"
	HeaderEventID            = "x-event-id"
	HeaderEventType          = "x-event-type"
	HeaderError              = "x-error"
	HeaderOriginalRoutingKey = "x-original-routing-key"
)

// Declarer is the subset of *amqp.Channel used to declare topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func DeclareBase(ch Declarer) error {
	for _, ex := range []string{ExchangeEvents, ExchangeRetry, ExchangeDLX} {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}
	return nil
}

type QueueSpec struct {
	Name     string
	BindKeys []string // routing keys on ExchangeEvents
	DLQKey   string   // dlq queue name and its routing key on ExchangeDLX
}

// DeclareQueueWithDLQ declares the work queue, binds it to ExchangeEvents and
// declares its dead-letter queue on ExchangeDLX.
func DeclareQueueWithDLQ(ch Declarer, spec QueueSpec) error {
	if _, err := ch.QueueDeclare(spec.DLQKey, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlq %s: %w", spec.DLQKey, err)
	}
	if err := ch.QueueBind(spec.DLQKey, spec.DLQKey, ExchangeDLX, false, nil); err != nil {
		return fmt.Errorf("bind dlq %s: %w", spec.DLQKey, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    ExchangeDLX,
		"x-dead-letter-routing-key": spec.DLQKey,
	}
	if _, err := ch.QueueDeclare(spec.Name, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", spec.Name, err)
	}
	for _, key := range spec.BindKeys {
		if err := ch.QueueBind(spec.Name, key, ExchangeEvents, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", spec.Name, key, err)
		}
	}
	return nil
}

// RetryRoutingKey is the key on ExchangeRetry for the given attempt of a service.
func RetryRoutingKey(service string, attempt int32) string {
	return fmt.Sprintf("%s.retry.%d", service, attempt)
}

// RetryDelays returns one delay per attempt, growing exponentially from base up to max.
func RetryDelays(base, max time.Duration, attempts int) []time.Duration {
	delays := make([]time.Duration, 0, attempts)
	for i := 0; i < attempts; i++ {
		delays = append(delays, backoff.Exponential(base, i, max))
	}
	return delays
}

// DeclareRetryTiers declares one TTL queue per attempt. Each bound to
// ExchangeRetry with RetryRoutingKey(service, n); after its TTL a message is
// dead-lettered through the default exchange straight back to target, so a
// retry never reaches other subscribers of the original event.
func DeclareRetryTiers(ch Declarer, service, target string, delays []time.Duration) error {
	for i, d := range delays {
		key := RetryRoutingKey(service, int32(i+1))
		args := amqp.Table{
			"x-message-ttl":             int32(d / time.Millisecond),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": target,
		}
		if _, err := ch.QueueDeclare(key, true, false, false, false, args); err != nil {
			return fmt.Errorf("declare retry queue %s: %w", key, err)
		}
		if err := ch.QueueBind(key, key, ExchangeRetry, false, nil); err != nil {
			return fmt.Errorf("bind retry queue %s: %w", key, err)
		}
	}
	return nil
}
