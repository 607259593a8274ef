package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"narrative-server/internal/models"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// StoryEventPublisher публикует события жизненного цикла истории.
type StoryEventPublisher interface {
	PublishStoryEvent(ctx context.Context, event models.StoryEvent) error
}

// RabbitMQStoryEventPublisher публикует события в durable очередь.
type RabbitMQStoryEventPublisher struct {
	mu        sync.Mutex
	channel   *amqp.Channel
	queueName string
	logger    *zap.Logger
}

// NewRabbitMQStoryEventPublisher открывает канал и объявляет очередь.
func NewRabbitMQStoryEventPublisher(conn *amqp.Connection, queueName string, logger *zap.Logger) (*RabbitMQStoryEventPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть канал RabbitMQ: %w", err)
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("не удалось объявить очередь '%s': %w", queueName, err)
	}
	logger.Info("Story events queue declared", zap.String("queue", queueName))
	return &RabbitMQStoryEventPublisher{
		channel:   ch,
		queueName: queueName,
		logger:    logger.Named("StoryEventPublisher"),
	}, nil
}

func (p *RabbitMQStoryEventPublisher) PublishStoryEvent(ctx context.Context, event models.StoryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("ошибка сериализации события: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx,
		"",          // exchange
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    uuid.NewString(),
			Timestamp:    time.Now(),
			Type:         string(event.Type),
			Body:         body,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish story event",
			zap.String("type", string(event.Type)),
			zap.String("sessionID", event.SessionID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("ошибка публикации события %s: %w", event.Type, err)
	}
	p.logger.Debug("Story event published", zap.String("type", string(event.Type)), zap.String("sessionID", event.SessionID.String()))
	return nil
}

// Close закрывает канал.
func (p *RabbitMQStoryEventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// NoopStoryEventPublisher используется, когда RABBITMQ_URL не задан.
type NoopStoryEventPublisher struct{}

func (NoopStoryEventPublisher) PublishStoryEvent(context.Context, models.StoryEvent) error {
	return nil
}

const (
	connectAttempts   = 5
	connectRetryDelay = 5 * time.Second
)

// ConnectRabbitMQ подключается к RabbitMQ с несколькими попытками.
func ConnectRabbitMQ(ctx context.Context, url string, logger *zap.Logger) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", connectAttempts),
			zap.Duration("retry_delay", connectRetryDelay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectRetryDelay):
		}
	}
	return nil, lastErr
}
