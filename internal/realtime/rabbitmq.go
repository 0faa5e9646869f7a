package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"tablebook/internal/shared/config"
	"tablebook/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQBackplane publishes to a fanout exchange; each instance binds its own
// exclusive queue to it.
type RabbitMQBackplane struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *logger.Logger

	pubMu sync.Mutex
}

func NewRabbitMQBackplane(cfg config.RabbitMQConfig, log *logger.Logger) (*RabbitMQBackplane, error) {
	if log == nil {
		log = logger.GetDefault()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"fanout",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return &RabbitMQBackplane{
		conn:     conn,
		ch:       ch,
		exchange: cfg.Exchange,
		log:      log.WithComponent("rabbitmq_backplane"),
	}, nil
}

func (r *RabbitMQBackplane) Publish(ctx context.Context, msg Message) error {
	body, err := msg.encode()
	if err != nil {
		return err
	}

	// amqp channels are not safe for concurrent publishes
	r.pubMu.Lock()
	defer r.pubMu.Unlock()

	err = r.ch.PublishWithContext(ctx,
		r.exchange, // exchange
		"",         // routing key, ignored by fanout
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Type:        msg.Event.Type,
			AppId:       msg.Origin,
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("could not publish event: %w", err)
	}
	return nil
}

func (r *RabbitMQBackplane) Run(ctx context.Context, handle func(Message)) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("could not open consumer channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		"",    // random name
		false, // non-durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("could not declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", r.exchange, false, nil); err != nil {
		return fmt.Errorf("could not bind queue: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name, // queue
		"",     // consumer tag
		true,   // auto-ack
		true,   // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("could not start consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil || r.conn.IsClosed() {
					return nil
				}
				return errors.New("rabbitmq delivery channel closed")
			}
			msg, err := decodeMessage(d.Body)
			if err != nil {
				r.log.Warn("Skipping undecodable message", logger.Err(err))
				continue
			}
			handle(msg)
		}
	}
}

func (r *RabbitMQBackplane) Close() error {
	return errors.Join(r.ch.Close(), r.conn.Close())
}
