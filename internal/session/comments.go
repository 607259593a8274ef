package session

import (
	"context"
	"time"

	"narrative-server/internal/models"

	"go.uber.org/zap"
)

// startCommentsLocked запускает таймер реплик, если он включен и еще не запущен.
func (s *Session) startCommentsLocked() {
	if s.deps.CommentInterval <= 0 || s.deps.Commenter == nil || s.stopComments != nil || s.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.stopComments = cancel
	go s.commentLoop(ctx, s.deps.CommentInterval)
}

// cancelCommentsLocked останавливает таймер реплик. Вызывается при каждой смене фазы.
func (s *Session) cancelCommentsLocked() {
	if s.stopComments != nil {
		s.stopComments()
		s.stopComments = nil
	}
}

func (s *Session) commentLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.phase != models.PhaseStory {
			s.mu.Unlock()
			return
		}
		recent := s.snapshot.CurrentSegment
		s.mu.Unlock()
		if recent == "" {
			continue
		}

		comment, err := s.deps.Commenter.Comment(ctx, recent)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Debug("Comment generation failed", zap.Error(err))
			}
			continue
		}

		s.mu.Lock()
		// Отмена могла произойти, пока генерировалась реплика.
		if ctx.Err() == nil {
			s.addMessageLocked(models.MessageComment, comment)
		}
		s.mu.Unlock()
	}
}
