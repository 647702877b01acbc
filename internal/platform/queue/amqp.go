package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

// AMQPQueue publishes job IDs to a durable RabbitMQ queue. Consumption starts
// lazily on the first Dequeue so API-only processes never take deliveries.
type AMQPQueue struct {
	conn        *amqp.Connection
	ch          *amqp.Channel
	name        string
	pollTimeout time.Duration

	publishMu  sync.Mutex
	consumeErr error
	consume    sync.Once
	deliveries <-chan amqp.Delivery
}

func NewAMQPQueue(url, name string, pollTimeout time.Duration) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error dialling rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("error opening rabbitmq channel: %w", err)
	}
	_, err = ch.QueueDeclare(
		name,  // queue name
		true,  // durable
		false, // auto-delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", name, err)
	}
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &AMQPQueue{conn: conn, ch: ch, name: name, pollTimeout: pollTimeout}, nil
}

func (q *AMQPQueue) Enqueue(ctx context.Context, jobID string) error {
	q.publishMu.Lock()
	defer q.publishMu.Unlock()
	err := q.ch.Publish(
		"",     // default exchange
		q.name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "text/plain",
			DeliveryMode: amqp.Persistent,
			Body:         []byte(jobID),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish job ID to rabbitmq queue %q: %w", q.name, err)
	}
	return nil
}

func (q *AMQPQueue) Dequeue(ctx context.Context) (string, error) {
	q.consume.Do(func() {
		q.deliveries, q.consumeErr = q.ch.Consume(
			q.name, // queue name
			"",     // consumer tag
			true,   // auto-ack
			false,  // exclusive
			false,  // no-local
			false,  // no-wait
			nil,    // arguments
		)
	})
	if q.consumeErr != nil {
		return "", fmt.Errorf("error consuming rabbitmq queue %q: %w", q.name, q.consumeErr)
	}

	timer := time.NewTimer(q.pollTimeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", ErrNoJob
	case msg, ok := <-q.deliveries:
		if !ok {
			return "", errors.New("rabbitmq delivery channel closed")
		}
		if len(msg.Body) == 0 {
			return "", ErrNoJob
		}
		return string(msg.Body), nil
	}
}

func (q *AMQPQueue) Close() error {
	q.ch.Close()
	return q.conn.Close()
}
