package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"vidscribe/pkg/logger"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	QueueNameVideoProcessing = "video_processing"
	ExchangeName             = "vidscribe"

	consumerTag = "vidscribe-worker"
)

// Handler processes one message body. A returned error requeues the message.
type Handler func(ctx context.Context, body []byte) error

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQ connects and declares the exchange and the processing queue
func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		"direct",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	_, err = ch.QueueDeclare(
		QueueNameVideoProcessing, // name
		true,                     // durable
		false,                    // delete when unused
		false,                    // exclusive
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	err = ch.QueueBind(
		QueueNameVideoProcessing, // queue name
		QueueNameVideoProcessing, // routing key
		ExchangeName,             // exchange
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	logger.Info("RabbitMQ connected successfully")

	return &RabbitMQ{
		conn:    conn,
		channel: ch,
	}, nil
}

// Publish publishes a message to the queue
func (r *RabbitMQ) Publish(ctx context.Context, queueName string, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := r.channel.PublishWithContext(
		ctx,
		ExchangeName, // exchange
		queueName,    // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	logger.Debug("Message published to queue",
		zap.String("queue", queueName),
		zap.Int("size", len(body)))

	return nil
}

// PublishTask publishes a VideoTask to the processing queue
func (r *RabbitMQ) PublishTask(ctx context.Context, task *VideoTask) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	return r.Publish(ctx, QueueNameVideoProcessing, body)
}

// Consume delivers messages to handler with at most concurrency in flight.
// It returns when ctx is cancelled or the channel closes, after in-flight handlers finish.
func (r *RabbitMQ) Consume(ctx context.Context, queueName string, concurrency int, handler Handler) error {
	if concurrency < 1 {
		concurrency = 1
	}

	err := r.channel.Qos(
		concurrency, // prefetch count
		0,           // prefetch size
		false,       // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := r.channel.Consume(
		queueName,   // queue
		consumerTag, // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Info("Starting to consume messages",
		zap.String("queue", queueName),
		zap.Int("concurrency", concurrency))

	serve(ctx, msgs, concurrency, handler)

	if err := r.channel.Cancel(consumerTag, false); err != nil && ctx.Err() == nil {
		return fmt.Errorf("failed to cancel consumer: %w", err)
	}
	return nil
}

func serve(ctx context.Context, msgs <-chan amqp.Delivery, concurrency int, handler Handler) {
	var g errgroup.Group
	g.SetLimit(concurrency)

	defer g.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				logger.Warn("Delivery channel closed")
				return
			}
			g.Go(func() error {
				handleDelivery(ctx, msg, handler)
				return nil
			})
		}
	}
}

func handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	logger.Debug("Received message", zap.Int("size", len(msg.Body)))

	if err := handler(ctx, msg.Body); err != nil {
		logger.Error("Failed to handle message", zap.Error(err))
		if nackErr := msg.Nack(false, true); nackErr != nil {
			logger.Error("Failed to nack message", zap.Error(nackErr))
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("Failed to ack message", zap.Error(err))
	}
}

// Close RabbitMQ connection
func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
