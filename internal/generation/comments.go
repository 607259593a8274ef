package generation

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// CommentGenerator пишет тревожные реплики для чата, пока читатель думает.
type CommentGenerator struct {
	client AIClient
	logger *zap.Logger
}

func NewCommentGenerator(client AIClient, logger *zap.Logger) *CommentGenerator {
	return &CommentGenerator{client: client, logger: logger.Named("CommentGenerator")}
}

// Comment генерирует одну реплику по последнему сегменту. Повторов нет:
// следующий тик планировщика сам попробует снова.
func (g *CommentGenerator) Comment(ctx context.Context, recentText string) (string, error) {
	temperature := 1.0
	maxTokens := 60
	text, _, err := g.client.GenerateText(ctx, "comment", commentSystemPrompt, recentText,
		GenerationParams{Temperature: &temperature, MaxTokens: &maxTokens})
	if err != nil {
		g.logger.Debug("Реплика не сгенерирована", zap.Error(err))
		return "", err
	}
	return strings.Trim(strings.TrimSpace(text), `"`), nil
}
