package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/urbanfix/backend/pkg/logger"
)

// Publisher sends JSON messages to a durable direct exchange.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(amqpURL, exchange string) (*Publisher, error) {
	conn, channel, err := dial(amqpURL, exchange)
	if err != nil {
		return nil, err
	}

	logger.Info("RabbitMQ publisher connected", zap.String("exchange", exchange))
	return &Publisher{conn: conn, channel: channel, exchange: exchange}, nil
}

// Publish marshals message and sends it persistently under routingKey.
func (p *Publisher) Publish(ctx context.Context, routingKey string, message interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// amqp.Channel is not safe for concurrent publishes.
	err = p.channel.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return closeAll(p.channel, p.conn)
}

func dial(amqpURL, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"direct", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return conn, channel, nil
}

func closeAll(channel *amqp.Channel, conn *amqp.Connection) error {
	var err error
	if channel != nil {
		if channelErr := channel.Close(); channelErr != nil {
			err = channelErr
		}
	}
	if conn != nil {
		if connErr := conn.Close(); connErr != nil && err == nil {
			err = connErr
		}
	}
	return err
}
