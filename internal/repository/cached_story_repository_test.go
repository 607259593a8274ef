package repository_test

import (
	"context"
	"testing"
	"time"

	"narrative-server/internal/models"
	"narrative-server/internal/repository"
	"narrative-server/internal/repository/mocks"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// unreachableRedis - клиент, у которого любая команда завершается ошибкой соединения.
func unreachableRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCachedStoryRepository_FallsBackWhenCacheIsDown(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	story := &models.PersistedStory{ID: id, Title: "Door", FullHistory: []string{"S0"}}

	next := mocks.NewMockStoryRepository(t)
	next.On("Get", ctx, id).Return(story, nil).Once()
	next.On("Update", ctx, id, models.StoryUpdate{Title: &story.Title}).Return(nil).Once()
	next.On("Delete", ctx, id).Return(models.ErrNotFound).Once()
	next.On("List", ctx, 10, 0).Return([]models.StorySummary{{ID: id}}, nil).Once()

	repo := repository.NewCachedStoryRepository(next, unreachableRedis(t), time.Minute, zap.NewNop())

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, story, got)

	require.NoError(t, repo.Update(ctx, id, models.StoryUpdate{Title: &story.Title}))
	assert.ErrorIs(t, repo.Delete(ctx, id), models.ErrNotFound)

	list, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCachedStoryRepository_GetPropagatesNotFound(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	next := mocks.NewMockStoryRepository(t)
	next.On("Get", ctx, id).Return(nil, models.ErrNotFound).Once()

	_, err := repository.NewCachedStoryRepository(next, unreachableRedis(t), time.Minute, zap.NewNop()).Get(ctx, id)

	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestIsNarrationHandle(t *testing.T) {
	assert.True(t, repository.IsNarrationHandle("narration:"+uuid.NewString()))
	assert.False(t, repository.IsNarrationHandle("narration:"))
	assert.False(t, repository.IsNarrationHandle("story:"+uuid.NewString()))
	assert.False(t, repository.IsNarrationHandle("narration:../../etc"))
}
