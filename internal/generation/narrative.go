package generation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"

	"narrative-server/internal/config"
	"narrative-server/internal/models"

	"go.uber.org/zap"
)

var errStopped = errors.New("consumer stopped")

// ErrSequenceConsumed возвращается при повторном проходе по уже прочитанной последовательности.
var ErrSequenceConsumed = errors.New("narrative sequence already consumed")

// NarrativeGenerator генерирует сегменты истории потоком.
type NarrativeGenerator struct {
	client AIClient
	retry  retryPolicy
	logger *zap.Logger
}

func NewNarrativeGenerator(client AIClient, cfg config.AIConfig, logger *zap.Logger) *NarrativeGenerator {
	return &NarrativeGenerator{
		client: client,
		retry:  retryPolicy{maxAttempts: cfg.MaxAttempts, baseDelay: cfg.RetryDelay},
		logger: logger.Named("NarrativeGenerator"),
	}
}

// Generate возвращает ленивую последовательность фрагментов текста.
// Пустой precedingText означает начало истории, тогда prompt - исходная завязка,
// иначе prompt - текст решения читателя.
// Последовательность можно пройти только один раз. Повтор запроса выполняется,
// только пока ни один фрагмент еще не отдан.
func (g *NarrativeGenerator) Generate(ctx context.Context, prompt, precedingText string) iter.Seq2[string, error] {
	var used atomic.Bool
	userInput := fmt.Sprintf(openingUserTemplate, prompt)
	operation := "narrative_opening"
	if strings.TrimSpace(precedingText) != "" {
		userInput = fmt.Sprintf(continuationUserTemplate, precedingText, prompt)
		operation = "narrative_continuation"
	}

	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrSequenceConsumed)
			return
		}
		if strings.TrimSpace(prompt) == "" {
			yield("", fmt.Errorf("%w: empty prompt", models.ErrInvalidInput))
			return
		}

		emitted, stopped := false, false
		err := g.retry.do(ctx, func() error {
			_, err := g.client.GenerateTextStream(ctx, operation, narrativeSystemPrompt, userInput, GenerationParams{}, func(chunk string) error {
				emitted = true
				if !yield(chunk, nil) {
					stopped = true
					return errStopped
				}
				return nil
			})
			if err != nil && emitted {
				// Часть текста уже отдана, повтор испортил бы сегмент
				return &permanentError{err}
			}
			return err
		})
		if stopped {
			return
		}
		if err != nil {
			var perm *permanentError
			if errors.As(err, &perm) {
				err = perm.err
			}
			g.logger.Error("Ошибка генерации сегмента", zap.String("operation", operation), zap.Error(err))
			if !errors.Is(err, models.ErrGenerationFailed) {
				err = fmt.Errorf("%w: %w", models.ErrGenerationFailed, err)
			}
			yield("", err)
			return
		}
		if !emitted {
			yield("", fmt.Errorf("%w: empty narrative", models.ErrGenerationFailed))
		}
	}
}

// permanentError помечает ошибку, которую нельзя повторять.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }
