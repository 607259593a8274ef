package generation

import (
	"context"
	"fmt"
	"strings"

	"narrative-server/internal/config"
	"narrative-server/internal/models"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// ImageClient - часть go-openai, нужная для обложки концовки.
type ImageClient interface {
	CreateImage(ctx context.Context, request openaigo.ImageRequest) (openaigo.ImageResponse, error)
}

// Imaginer рисует изображение для завершенной истории.
type Imaginer struct {
	images ImageClient
	model  string
	size   string
	logger *zap.Logger
}

// NewImaginer создает генератор изображений. images может быть nil.
func NewImaginer(images ImageClient, cfg config.AIConfig, logger *zap.Logger) *Imaginer {
	return &Imaginer{images: images, model: cfg.ImageModel, size: cfg.ImageSize, logger: logger.Named("Imaginer")}
}

// Imagine возвращает изображение в base64.
func (g *Imaginer) Imagine(ctx context.Context, prompt string) (string, error) {
	if g.images == nil {
		recordMedia("image", "not_configured")
		return "", fmt.Errorf("%w: %w: image client", models.ErrGenerationFailed, models.ErrMissingConfiguration)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", models.ErrInvalidInput)
	}

	g.logger.Info("Генерация изображения", zap.Int("promptLength", len(prompt)))
	resp, err := g.images.CreateImage(ctx, openaigo.ImageRequest{
		Prompt:         imageSystemPreamble + "\n\nPrompt: " + prompt,
		Model:          g.model,
		N:              1,
		Size:           g.size,
		ResponseFormat: openaigo.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		recordMedia("image", "error")
		return "", fmt.Errorf("%w: image: %v", models.ErrGenerationFailed, err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		recordMedia("image", "error_empty_response")
		return "", fmt.Errorf("%w: no image data found in response", models.ErrGenerationFailed)
	}
	recordMedia("image", "success")
	return resp.Data[0].B64JSON, nil
}

// EndingImagePrompt собирает запрос к изображению из последних сегментов истории.
func EndingImagePrompt(initialPrompt string, history []string) string {
	const tail = 2
	start := len(history) - tail
	if start < 0 {
		start = 0
	}
	parts := []string{"Final scene of a story that began with: " + initialPrompt}
	parts = append(parts, history[start:]...)
	prompt := strings.Join(parts, "\n")
	// Ограничение DALL-E 3 - 4000 символов
	if r := []rune(prompt); len(r) > 3500 {
		prompt = string(r[:3500])
	}
	return prompt
}
