package generation

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"narrative-server/internal/models"
)

// retryPolicy - экспоненциальная задержка с джиттером 10%.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

func (p retryPolicy) attempts() int {
	if p.maxAttempts < 1 {
		return 1
	}
	return p.maxAttempts
}

// retryable: отсутствие конфигурации, отмена контекста и permanentError не повторяются.
func retryable(err error) bool {
	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}
	return !errors.Is(err, models.ErrMissingConfiguration) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}

// wait ждет перед попыткой attempt+1. Возвращает false, если контекст отменен.
func (p retryPolicy) wait(ctx context.Context, attempt int) bool {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	jitter := delay * 0.1
	delay += jitter * (rand.Float64()*2 - 1)
	timer := time.NewTimer(time.Duration(delay))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.attempts(); attempt++ {
		if err = fn(); err == nil || !retryable(err) {
			return err
		}
		if attempt == p.attempts() || !p.wait(ctx, attempt) {
			break
		}
	}
	return err
}
