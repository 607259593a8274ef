package generation

import (
	"context"
	"fmt"
	"io"
	"strings"

	"narrative-server/internal/config"
	"narrative-server/internal/models"

	openaigo "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// SpeechClient - часть go-openai, нужная для озвучки.
type SpeechClient interface {
	CreateSpeech(ctx context.Context, request openaigo.CreateSpeechRequest) (openaigo.RawResponse, error)
}

// AudioStore хранит байты озвучки и выдает на них непрозрачный дескриптор.
type AudioStore interface {
	Put(ctx context.Context, audio []byte) (string, error)
	Delete(ctx context.Context, handle string) error
}

// Narrator озвучивает сегменты и освобождает озвучку брошенных сегментов.
type Narrator struct {
	speech SpeechClient
	store  AudioStore
	model  string
	voice  string
	logger *zap.Logger
}

// NewNarrator создает озвучку. speech может быть nil, тогда Narrate всегда
// возвращает ErrMissingConfiguration.
func NewNarrator(speech SpeechClient, store AudioStore, cfg config.AIConfig, logger *zap.Logger) *Narrator {
	return &Narrator{
		speech: speech,
		store:  store,
		model:  cfg.TTSModel,
		voice:  cfg.TTSVoice,
		logger: logger.Named("Narrator"),
	}
}

// Narrate генерирует mp3 для текста и возвращает дескриптор в AudioStore.
func (n *Narrator) Narrate(ctx context.Context, text string) (string, error) {
	if n.speech == nil {
		recordMedia("narration", "not_configured")
		return "", fmt.Errorf("%w: %w: speech client", models.ErrGenerationFailed, models.ErrMissingConfiguration)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty text", models.ErrInvalidInput)
	}

	resp, err := n.speech.CreateSpeech(ctx, openaigo.CreateSpeechRequest{
		Model:          openaigo.SpeechModel(n.model),
		Input:          text,
		Voice:          openaigo.SpeechVoice(n.voice),
		ResponseFormat: openaigo.SpeechResponseFormatMp3,
	})
	if err != nil {
		recordMedia("narration", "error")
		return "", fmt.Errorf("%w: speech: %v", models.ErrGenerationFailed, err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil || len(audio) == 0 {
		recordMedia("narration", "error")
		return "", fmt.Errorf("%w: empty speech response: %v", models.ErrGenerationFailed, err)
	}

	handle, err := n.store.Put(ctx, audio)
	if err != nil {
		recordMedia("narration", "error_store")
		return "", fmt.Errorf("%w: store narration: %v", models.ErrGenerationFailed, err)
	}
	recordMedia("narration", "success")
	n.logger.Debug("Озвучка сохранена", zap.String("handle", handle), zap.Int("bytes", len(audio)))
	return handle, nil
}

// Release удаляет озвучку. Пустой дескриптор игнорируется.
func (n *Narrator) Release(ctx context.Context, handle string) error {
	if handle == "" {
		return nil
	}
	if err := n.store.Delete(ctx, handle); err != nil {
		n.logger.Warn("Не удалось удалить озвучку", zap.String("handle", handle), zap.Error(err))
		return err
	}
	return nil
}
