package session

import (
	"context"
	"iter"
	"time"

	"narrative-server/internal/models"
	"narrative-server/internal/repository"

	"go.uber.org/zap"
)

// NarrativeGenerator генерирует следующий сегмент истории потоком фрагментов.
type NarrativeGenerator interface {
	Generate(ctx context.Context, prompt, precedingText string) iter.Seq2[string, error]
}

// OptionGenerator предлагает ровно два варианта продолжения.
type OptionGenerator interface {
	GenerateOptions(ctx context.Context, currentText string) ([]string, error)
}

// Narrator озвучивает сегмент и освобождает аудио, когда сегмент больше не нужен.
type Narrator interface {
	Narrate(ctx context.Context, text string) (string, error)
	Release(ctx context.Context, handle string) error
}

// Imaginer рисует финальную иллюстрацию.
type Imaginer interface {
	Imagine(ctx context.Context, prompt string) (string, error)
}

// Commenter пишет "тревожные" реплики в чат по таймеру.
type Commenter interface {
	Comment(ctx context.Context, recentText string) (string, error)
}

// EventPublisher публикует события жизненного цикла истории.
type EventPublisher interface {
	PublishStoryEvent(ctx context.Context, event models.StoryEvent) error
}

// Notifier доставляет push-уведомления клиентам сессии.
type Notifier interface {
	SendToUser(sessionID, messageType, topic string, payload interface{})
}

// Deps - внешние зависимости сессии. Nil генераторы считаются ненастроенными.
type Deps struct {
	Narrative NarrativeGenerator
	Options   OptionGenerator
	Narrator  Narrator
	Imaginer  Imaginer
	Commenter Commenter
	Stories   repository.StoryRepository
	Events    EventPublisher
	Notifier  Notifier

	// CommentInterval - период реплик в чате. 0 отключает реплики.
	CommentInterval time.Duration
	Now             func() time.Time
	Logger          *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}
