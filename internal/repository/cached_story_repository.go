package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"narrative-server/internal/models"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const storyCacheKeyPrefix = "story:"

var _ StoryRepository = (*CachedStoryRepository)(nil)

// CachedStoryRepository - read-through кэш в Redis поверх любого StoryRepository.
// Ошибки Redis не считаются ошибками хранилища: запрос уходит в next.
type CachedStoryRepository struct {
	next   StoryRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedStoryRepository(next StoryRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStoryRepository {
	return &CachedStoryRepository{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger.Named("CachedStoryRepo"),
	}
}

func storyCacheKey(id uuid.UUID) string {
	return storyCacheKeyPrefix + id.String()
}

func (r *CachedStoryRepository) prime(ctx context.Context, story *models.PersistedStory) {
	data, err := json.Marshal(story)
	if err != nil {
		r.logger.Warn("Failed to encode story for cache", zap.String("storyID", story.ID.String()), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, storyCacheKey(story.ID), data, r.ttl).Err(); err != nil {
		r.logger.Warn("Failed to cache story", zap.String("storyID", story.ID.String()), zap.Error(err))
	}
}

func (r *CachedStoryRepository) invalidate(ctx context.Context, id uuid.UUID) {
	if err := r.client.Del(ctx, storyCacheKey(id)).Err(); err != nil {
		r.logger.Warn("Failed to invalidate cached story", zap.String("storyID", id.String()), zap.Error(err))
	}
}

func (r *CachedStoryRepository) Save(ctx context.Context, story *models.PersistedStory) (uuid.UUID, error) {
	id, err := r.next.Save(ctx, story)
	if err != nil {
		return uuid.Nil, err
	}
	r.prime(ctx, story)
	return id, nil
}

func (r *CachedStoryRepository) Update(ctx context.Context, id uuid.UUID, update models.StoryUpdate) error {
	if err := r.next.Update(ctx, id, update); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}

func (r *CachedStoryRepository) List(ctx context.Context, limit, offset int) ([]models.StorySummary, error) {
	return r.next.List(ctx, limit, offset)
}

func (r *CachedStoryRepository) Get(ctx context.Context, id uuid.UUID) (*models.PersistedStory, error) {
	data, err := r.client.Get(ctx, storyCacheKey(id)).Bytes()
	switch {
	case err == nil:
		var story models.PersistedStory
		if jsonErr := json.Unmarshal(data, &story); jsonErr == nil {
			return &story, nil
		}
		r.logger.Warn("Cached story is corrupt, dropping", zap.String("storyID", id.String()))
		r.invalidate(ctx, id)
	case errors.Is(err, redis.Nil):
	default:
		r.logger.Warn("Story cache unavailable", zap.String("storyID", id.String()), zap.Error(err))
	}

	story, err := r.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r.prime(ctx, story)
	return story, nil
}

func (r *CachedStoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.next.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx, id)
	return nil
}
