package notify

//go:generate mockgen -destination=mock_publisher.go -package=notify artx-auction/internal/notify Publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	model "artx-auction/internal/models"
	"artx-auction/utils"

	amqp "github.com/rabbitmq/amqp091-go"
)

// NotificationQueue is the durable queue notifications are published to
const NotificationQueue = "auction.notifications"

// Publisher delivers one notification to the outside world
type Publisher interface {
	Publish(ctx context.Context, n model.Notification) error
}

// LogPublisher writes notifications to the structured log
type LogPublisher struct{}

// Publish logs the notification
func (LogPublisher) Publish(_ context.Context, n model.Notification) error {
	utils.Info("notification", map[string]any{
		"notification_id": n.NotificationID,
		"user_id":         n.UserID,
		"auction_id":      n.AuctionID,
		"type":            n.Type,
		"title":           n.Title,
		"message":         n.Message,
	})
	return nil
}

// AMQPPublisher publishes notifications as persistent JSON messages to RabbitMQ
type AMQPPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

// NewAMQPPublisher dials url and declares the durable notification queue
func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial failed: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: channel open failed: %w", err)
	}
	if _, err := ch.QueueDeclare(
		NotificationQueue, // name
		true,              // durable
		false,             // autoDelete
		false,             // exclusive
		false,             // noWait
		nil,               // args
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: queue declare failed: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, queue: NotificationQueue}, nil
}

// Publish sends n to the notification queue
func (p *AMQPPublisher) Publish(ctx context.Context, n model.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal notification failed: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    n.Key,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish failed: %w", err)
	}
	return nil
}

// Close releases the channel and the connection
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	chErr := p.ch.Close()
	if err := p.conn.Close(); err != nil {
		return err
	}
	return chErr
}
