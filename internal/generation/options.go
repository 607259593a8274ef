package generation

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"narrative-server/internal/config"
	"narrative-server/internal/models"

	"go.uber.org/zap"
)

// OptionCount - сколько вариантов продолжения ожидается от модели.
const OptionCount = 2

// OptionGenerator предлагает варианты продолжения истории.
type OptionGenerator struct {
	client AIClient
	retry  retryPolicy
	logger *zap.Logger
}

func NewOptionGenerator(client AIClient, cfg config.AIConfig, logger *zap.Logger) *OptionGenerator {
	return &OptionGenerator{
		client: client,
		retry:  retryPolicy{maxAttempts: cfg.MaxAttempts, baseDelay: cfg.RetryDelay},
		logger: logger.Named("OptionGenerator"),
	}
}

// GenerateOptions возвращает ровно два коротких варианта для текущего сегмента.
func (g *OptionGenerator) GenerateOptions(ctx context.Context, currentText string) ([]string, error) {
	if strings.TrimSpace(currentText) == "" {
		return nil, fmt.Errorf("%w: empty segment", models.ErrInvalidInput)
	}
	temperature := 0.9
	var options []string
	err := g.retry.do(ctx, func() error {
		raw, _, err := g.client.GenerateText(ctx, "options", optionsSystemPrompt, currentText, GenerationParams{Temperature: &temperature})
		if err != nil {
			return err
		}
		options, err = ParseOptions(raw)
		return err
	})
	if err != nil {
		g.logger.Warn("Не удалось получить варианты", zap.Error(err))
		return nil, err
	}
	return options, nil
}

// ParseOptions разбирает ответ модели: по одному варианту на строку,
// нумерация, маркеры списка и кавычки отбрасываются.
func ParseOptions(raw string) ([]string, error) {
	seen := make(map[string]struct{}, OptionCount)
	options := make([]string, 0, OptionCount)
	for _, line := range strings.Split(raw, "\n") {
		option := cleanOptionLine(line)
		if option == "" || strings.EqualFold(option, models.FreeFormOption) {
			continue
		}
		key := strings.ToLower(option)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		options = append(options, option)
		if len(options) == OptionCount {
			return options, nil
		}
	}
	return nil, fmt.Errorf("%w: expected %d options, got %d", models.ErrGenerationFailed, OptionCount, len(options))
}

func cleanOptionLine(line string) string {
	line = strings.TrimSpace(line)
	// "1.", "2)", "-", "*"
	line = strings.TrimLeftFunc(line, func(r rune) bool {
		return unicode.IsDigit(r) || r == '.' || r == ')' || r == '-' || r == '*' || r == '•' || unicode.IsSpace(r)
	})
	line = strings.Trim(line, "\"'`«»“” ")
	return strings.TrimSpace(line)
}
