package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"narrative-server/internal/config"
	"narrative-server/internal/models"

	"github.com/ollama/ollama/api"
	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// GenerationParams - параметры генерации. Указатели отличают 0 от отсутствия значения.
type GenerationParams struct {
	Temperature *float64
	MaxTokens   *int
	TopP        *float64
}

// UsageInfo содержит информацию об использовании токенов
type UsageInfo struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIClient интерфейс для взаимодействия с AI API
type AIClient interface {
	// GenerateText генерирует текст целиком. operation используется как метка метрик.
	GenerateText(ctx context.Context, operation string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error)
	// GenerateTextStream вызывает chunkHandler для каждого полученного фрагмента.
	// Ошибка из chunkHandler прерывает стрим.
	GenerateTextStream(ctx context.Context, operation string, systemPrompt string, userInput string, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error)
}

// --- OpenAI ---

type openAIClient struct {
	client *openaigo.Client
	model  string
	logger *zap.Logger
}

func buildMessages(systemPrompt, userInput string) []openaigo.ChatCompletionMessage {
	messages := []openaigo.ChatCompletionMessage{{Role: openaigo.ChatMessageRoleSystem, Content: systemPrompt}}
	if userInput != "" {
		messages = append(messages, openaigo.ChatCompletionMessage{Role: openaigo.ChatMessageRoleUser, Content: userInput})
	}
	return messages
}

func (c *openAIClient) GenerateText(ctx context.Context, operation string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}
	if strings.TrimSpace(systemPrompt) == "" {
		recordRequest(c.model, operation, "error", 0)
		return "", usage, fmt.Errorf("%w: системный промт пуст", models.ErrGenerationFailed)
	}

	start := time.Now()
	c.logger.Debug("Отправка запроса к AI",
		zap.String("operation", operation),
		zap.Int("systemPromptBytes", len(systemPrompt)),
		zap.Int("userInputBytes", len(userInput)),
	)
	resp, err := c.client.CreateChatCompletion(ctx, openaigo.ChatCompletionRequest{
		Model:       c.model,
		Messages:    buildMessages(systemPrompt, userInput),
		Temperature: float32Val(params.Temperature),
		MaxTokens:   intVal(params.MaxTokens),
		TopP:        float32Val(params.TopP),
	})
	duration := time.Since(start)
	if err != nil {
		c.logger.Error("Ошибка от AI API", zap.String("operation", operation), zap.Duration("duration", duration), zap.Error(err))
		recordRequest(c.model, operation, "error", duration)
		return "", usage, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		c.logger.Warn("AI API вернул пустой ответ", zap.String("operation", operation), zap.Duration("duration", duration))
		recordRequest(c.model, operation, "error_empty_response", duration)
		return "", usage, fmt.Errorf("%w: получен пустой ответ", models.ErrGenerationFailed)
	}

	usage.PromptTokens = resp.Usage.PromptTokens
	usage.CompletionTokens = resp.Usage.CompletionTokens
	usage.TotalTokens = resp.Usage.TotalTokens
	recordRequest(c.model, operation, "success", duration)
	recordUsage(c.model, operation, usage)
	c.logger.Debug("Ответ от AI API получен",
		zap.String("operation", operation),
		zap.Duration("duration", duration),
		zap.Int("totalTokens", usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, usage, nil
}

func (c *openAIClient) GenerateTextStream(ctx context.Context, operation string, systemPrompt string, userInput string, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	usage := UsageInfo{}
	if strings.TrimSpace(systemPrompt) == "" {
		return usage, fmt.Errorf("%w: системный промт пуст для стриминга", models.ErrGenerationFailed)
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, openaigo.ChatCompletionRequest{
		Model:         c.model,
		Messages:      buildMessages(systemPrompt, userInput),
		Stream:        true,
		StreamOptions: &openaigo.StreamOptions{IncludeUsage: true},
		Temperature:   float32Val(params.Temperature),
		MaxTokens:     intVal(params.MaxTokens),
		TopP:          float32Val(params.TopP),
	})
	if err != nil {
		c.logger.Error("Ошибка создания стрима от OpenAI API", zap.String("operation", operation), zap.Error(err))
		recordRequest(c.model, operation, "error_stream_init", 0)
		return usage, fmt.Errorf("%w: ошибка создания стрима: %v", models.ErrGenerationFailed, err)
	}
	defer stream.Close()

	start := time.Now()
	var text strings.Builder
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			c.logger.Error("Ошибка чтения из стрима OpenAI", zap.String("operation", operation), zap.Error(err))
			recordRequest(c.model, operation, "error_stream_read", time.Since(start))
			return usage, fmt.Errorf("%w: ошибка чтения стрима: %v", models.ErrGenerationFailed, err)
		}
		if response.Usage != nil && response.Usage.TotalTokens > 0 {
			usage.PromptTokens = response.Usage.PromptTokens
			usage.CompletionTokens = response.Usage.CompletionTokens
			usage.TotalTokens = response.Usage.TotalTokens
		}
		if len(response.Choices) == 0 || response.Choices[0].Delta.Content == "" {
			continue
		}
		chunk := response.Choices[0].Delta.Content
		text.WriteString(chunk)
		if chunkHandler != nil {
			if err := chunkHandler(chunk); err != nil {
				recordRequest(c.model, operation, "stream_aborted", time.Since(start))
				return usage, fmt.Errorf("ошибка обработчика стрима: %w", err)
			}
		}
	}

	duration := time.Since(start)
	status := "success_stream"
	if usage.TotalTokens == 0 {
		// Финальный блок usage приходит не у всех совместимых API
		if prompt, ok := estimateTokens(c.model, systemPrompt, userInput); ok {
			completion, _ := estimateTokens(c.model, text.String())
			usage = UsageInfo{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
			status = "success_stream_estimated"
		}
	}
	recordRequest(c.model, operation, status, duration)
	recordUsage(c.model, operation, usage)
	return usage, nil
}

func float32Val(f64 *float64) float32 {
	if f64 == nil {
		return 0
	}
	return float32(*f64)
}

func intVal(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

// --- Ollama ---

type ollamaClient struct {
	client  *api.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func newOllamaClient(cfg config.AIConfig, logger *zap.Logger) (AIClient, error) {
	// api.NewClient требует URL без суффикса /v1
	baseURL := strings.TrimSuffix(strings.TrimSuffix(cfg.BaseURL, "/"), "/v1")
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга Ollama Base URL '%s': %w", baseURL, err)
	}
	client := api.NewClient(parsedURL, &http.Client{Timeout: cfg.Timeout})
	logger.Info("Ollama клиент создан", zap.String("baseURL", baseURL), zap.String("model", cfg.Model))
	return &ollamaClient{client: client, model: cfg.Model, timeout: cfg.Timeout, logger: logger}, nil
}

func (c *ollamaClient) chatRequest(systemPrompt, userInput string, params GenerationParams, stream bool) *api.ChatRequest {
	messages := []api.Message{{Role: "system", Content: systemPrompt}}
	if userInput != "" {
		messages = append(messages, api.Message{Role: "user", Content: userInput})
	}
	options := map[string]interface{}{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.TopP != nil {
		options["top_p"] = *params.TopP
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	return &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options:  options,
	}
}

func (c *ollamaClient) GenerateText(ctx context.Context, operation string, systemPrompt string, userInput string, params GenerationParams) (string, UsageInfo, error) {
	usage := UsageInfo{}
	if strings.TrimSpace(systemPrompt) == "" {
		recordRequest(c.model, operation, "error", 0)
		return "", usage, fmt.Errorf("%w: системный промт пуст", models.ErrGenerationFailed)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var resp api.ChatResponse
	err := c.client.Chat(requestCtx, c.chatRequest(systemPrompt, userInput, params, false), func(r api.ChatResponse) error {
		resp = r
		return nil
	})
	duration := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.logger.Error("Таймаут Ollama API", zap.String("operation", operation), zap.Duration("timeout", c.timeout), zap.Error(err))
		} else {
			c.logger.Error("Ошибка от Ollama API", zap.String("operation", operation), zap.Duration("duration", duration), zap.Error(err))
		}
		recordRequest(c.model, operation, "error", duration)
		return "", usage, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		recordRequest(c.model, operation, "error_empty_response", duration)
		return "", usage, fmt.Errorf("%w: получен пустой ответ", models.ErrGenerationFailed)
	}

	usage = UsageInfo{
		PromptTokens:     resp.PromptEvalCount,
		CompletionTokens: resp.EvalCount,
		TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
	}
	recordRequest(c.model, operation, "success", duration)
	recordUsage(c.model, operation, usage)
	return resp.Message.Content, usage, nil
}

func (c *ollamaClient) GenerateTextStream(ctx context.Context, operation string, systemPrompt string, userInput string, params GenerationParams, chunkHandler func(string) error) (UsageInfo, error) {
	usage := UsageInfo{}
	if strings.TrimSpace(systemPrompt) == "" {
		return usage, fmt.Errorf("%w: системный промт пуст для стриминга", models.ErrGenerationFailed)
	}

	requestCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	var handlerErr error
	err := c.client.Chat(requestCtx, c.chatRequest(systemPrompt, userInput, params, true), func(resp api.ChatResponse) error {
		if resp.Message.Content != "" && chunkHandler != nil {
			if err := chunkHandler(resp.Message.Content); err != nil {
				handlerErr = err
				return err
			}
		}
		if resp.Done {
			usage.PromptTokens = resp.PromptEvalCount
			usage.CompletionTokens = resp.EvalCount
			usage.TotalTokens = resp.PromptEvalCount + resp.EvalCount
			if resp.DoneReason != "" && resp.DoneReason != "stop" {
				c.logger.Warn("Стрим Ollama завершился не по причине 'stop'", zap.String("reason", resp.DoneReason))
			}
		}
		return nil
	})
	duration := time.Since(start)
	if handlerErr != nil {
		recordRequest(c.model, operation, "stream_aborted", duration)
		return usage, fmt.Errorf("ошибка обработчика стрима: %w", handlerErr)
	}
	if err != nil {
		c.logger.Error("Ошибка во время стриминга Ollama", zap.String("operation", operation), zap.Duration("duration", duration), zap.Error(err))
		recordRequest(c.model, operation, "error_stream", duration)
		return usage, fmt.Errorf("%w: %v", models.ErrGenerationFailed, err)
	}

	recordRequest(c.model, operation, "success_stream", duration)
	recordUsage(c.model, operation, usage)
	return usage, nil
}

// --- Не настроенный клиент ---

// unavailableClient возвращается, когда для AI нет ключа.
// Любой вызов завершается ErrMissingConfiguration.
type unavailableClient struct {
	reason string
	once   sync.Once
	logger *zap.Logger
}

func (c *unavailableClient) fail() error {
	c.once.Do(func() {
		c.logger.Error("Генерация недоступна", zap.String("reason", c.reason))
	})
	return fmt.Errorf("%w: %w: %s", models.ErrGenerationFailed, models.ErrMissingConfiguration, c.reason)
}

func (c *unavailableClient) GenerateText(context.Context, string, string, string, GenerationParams) (string, UsageInfo, error) {
	return "", UsageInfo{}, c.fail()
}

func (c *unavailableClient) GenerateTextStream(context.Context, string, string, string, GenerationParams, func(string) error) (UsageInfo, error) {
	return UsageInfo{}, c.fail()
}

// NewUnavailableClient создает клиента, который всегда возвращает ErrMissingConfiguration.
func NewUnavailableClient(reason string, logger *zap.Logger) AIClient {
	return &unavailableClient{reason: reason, logger: logger.Named("AIClient")}
}

// --- Фабрика ---

// NewOpenAISDK создает клиента go-openai. Возвращает nil, если ключ не задан.
func NewOpenAISDK(cfg config.AIConfig) *openaigo.Client {
	if cfg.APIKey == "" {
		return nil
	}
	openaiConfig := openaigo.DefaultConfig(cfg.APIKey)
	openaiConfig.BaseURL = cfg.BaseURL
	openaiConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return openaigo.NewClientWithConfig(openaiConfig)
}

// NewAIClient создает текстового клиента в зависимости от конфигурации.
// Для openai без ключа возвращается клиент-заглушка, сервер при этом стартует.
func NewAIClient(cfg config.AIConfig, logger *zap.Logger) (AIClient, error) {
	log := logger.Named("AIClient")
	switch strings.ToLower(cfg.ClientType) {
	case "openai":
		sdk := NewOpenAISDK(cfg)
		if sdk == nil {
			log.Warn("AI ключ не задан, генерация текста отключена")
			return NewUnavailableClient("ai_api_key is not configured", logger), nil
		}
		log.Info("OpenAI клиент создан", zap.String("baseURL", cfg.BaseURL), zap.String("model", cfg.Model))
		return &openAIClient{client: sdk, model: cfg.Model, logger: log}, nil
	case "ollama":
		return newOllamaClient(cfg, log)
	default:
		return nil, fmt.Errorf("неизвестный тип AI клиента: '%s'", cfg.ClientType)
	}
}

// NewMediaClients возвращает клиентов озвучки и изображений.
// Оба nil, если ключ не задан или используется не OpenAI.
func NewMediaClients(cfg config.AIConfig) (SpeechClient, ImageClient) {
	if !strings.EqualFold(cfg.ClientType, "openai") {
		return nil, nil
	}
	sdk := NewOpenAISDK(cfg)
	if sdk == nil {
		return nil, nil
	}
	return sdk, sdk
}
