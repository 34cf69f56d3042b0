package rabbit

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Subscriber is the subset of *amqp.Channel needed to consume a queue.
type Subscriber interface {
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

type Consumer struct {
	ch  Subscriber
	tag string
}

// NewConsumer consumes under tag so the subscription can be cancelled by name.
func NewConsumer(ch Subscriber, tag string) *Consumer { return &Consumer{ch: ch, tag: tag} }

// Consume starts manual-ack delivery from queue with at most prefetch unacked messages.
func (c *Consumer) Consume(queue string, prefetch int) (<-chan amqp.Delivery, error) {
	if err := c.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("qos %s: %w", queue, err)
	}
	dels, err := c.ch.Consume(queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return dels, nil
}

// Cancel stops new deliveries; the delivery channel closes once the broker confirms.
func (c *Consumer) Cancel() error {
	return c.ch.Cancel(c.tag, false)
}
