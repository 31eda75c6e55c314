package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/internal/metrics"
	"github.com/urbanfix/backend/pkg/logger"
)

// Handler processes one message body. Return nil to ack, Permanent(err) to
// drop the message, or any other error to requeue it.
type Handler func(ctx context.Context, body []byte) error

// PermanentError marks a failure that redelivery cannot fix.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string {
	if e == nil || e.Err == nil {
		return "permanent error"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var perr *PermanentError
	return errors.As(err, &perr)
}

type Consumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	prefetch int
}

func NewConsumer(amqpURL, exchange, queue string, prefetch int) (*Consumer, error) {
	conn, channel, err := dial(amqpURL, exchange)
	if err != nil {
		return nil, err
	}

	q, err := channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		closeAll(channel, conn)
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	if prefetch <= 0 {
		prefetch = 1
	}
	if err := channel.Qos(prefetch, 0, false); err != nil {
		closeAll(channel, conn)
		return nil, fmt.Errorf("failed to set qos: %w", err)
	}

	logger.Info("RabbitMQ consumer connected",
		zap.String("exchange", exchange),
		zap.String("queue", q.Name),
		zap.Int("prefetch", prefetch),
	)
	return &Consumer{conn: conn, channel: channel, exchange: exchange, queue: q.Name, prefetch: prefetch}, nil
}

// Consume binds routingKey and runs handler on up to prefetch deliveries at a
// time. It blocks until ctx ends or the broker closes the delivery channel.
func (c *Consumer) Consume(ctx context.Context, routingKey string, handler Handler) error {
	if err := c.channel.QueueBind(c.queue, routingKey, c.exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	deliveries, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	var wg sync.WaitGroup
	slots := make(chan struct{}, c.prefetch)
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			slots <- struct{}{}
			wg.Add(1)
			go func(d amqp.Delivery) {
				defer func() {
					<-slots
					wg.Done()
				}()
				settle(d, d.DeliveryTag, run(ctx, handler, d.Body))
			}(d)
		}
	}
}

func (c *Consumer) Close() error {
	return closeAll(c.channel, c.conn)
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// run treats a handler panic as a permanent failure.
func run(ctx context.Context, handler Handler, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panic: %v", r))
		}
	}()
	return handler(ctx, body)
}

func settle(d acknowledger, tag uint64, err error) {
	var action string
	var ackErr error

	switch {
	case err == nil:
		action = "ack"
		ackErr = d.Ack(false)
	case IsPermanent(err):
		action = "dropped"
		ackErr = d.Nack(false, false)
	default:
		action = "requeued"
		ackErr = d.Nack(false, true)
	}

	metrics.QueueMessagesTotal.WithLabelValues(action).Inc()

	fields := []zap.Field{zap.Uint64("delivery_tag", tag), zap.String("action", action)}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	if ackErr != nil {
		logger.Error("Failed to settle delivery", append(fields, zap.NamedError("settle_error", ackErr))...)
		return
	}
	if err != nil {
		logger.Warn("Delivery not processed", fields...)
		return
	}
	logger.Debug("Delivery processed", fields...)
}
