package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"narrative-server/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const narrationKeyPrefix = "narration:"

// RedisNarrationStore хранит mp3 озвучки в Redis с TTL.
// Дескриптор - это ключ Redis вида narration:<uuid>.
type RedisNarrationStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewRedisNarrationStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisNarrationStore {
	return &RedisNarrationStore{client: client, ttl: ttl, logger: logger.Named("NarrationStore")}
}

// IsNarrationHandle проверяет, что строка похожа на дескриптор озвучки.
func IsNarrationHandle(handle string) bool {
	if len(handle) <= len(narrationKeyPrefix) || handle[:len(narrationKeyPrefix)] != narrationKeyPrefix {
		return false
	}
	_, err := uuid.Parse(handle[len(narrationKeyPrefix):])
	return err == nil
}

func (s *RedisNarrationStore) Put(ctx context.Context, audio []byte) (string, error) {
	handle := narrationKeyPrefix + uuid.NewString()
	if err := s.client.Set(ctx, handle, audio, s.ttl).Err(); err != nil {
		s.logger.Error("Failed to store narration", zap.Error(err))
		return "", fmt.Errorf("ошибка сохранения озвучки: %w", err)
	}
	return handle, nil
}

func (s *RedisNarrationStore) Get(ctx context.Context, handle string) ([]byte, error) {
	if !IsNarrationHandle(handle) {
		return nil, models.ErrNotFound
	}
	audio, err := s.client.Get(ctx, handle).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения озвучки: %w", err)
	}
	return audio, nil
}

func (s *RedisNarrationStore) Delete(ctx context.Context, handle string) error {
	if !IsNarrationHandle(handle) {
		return nil
	}
	if err := s.client.Del(ctx, handle).Err(); err != nil {
		return fmt.Errorf("ошибка удаления озвучки: %w", err)
	}
	return nil
}
