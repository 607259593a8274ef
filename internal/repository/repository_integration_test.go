//go:build integration

package repository_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"narrative-server/internal/database"
	"narrative-server/internal/models"
	"narrative-server/internal/repository"

	"github.com/docker/docker/client"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type RepositoryIntegrationSuite struct {
	suite.Suite
	ctx         context.Context
	pgContainer *postgres.PostgresContainer
	rdContainer *tcredis.RedisContainer
	pgPool      *pgxpool.Pool
	redisClient *redis.Client
	logger      *zap.Logger
	repo        repository.StoryRepository
	cached      *repository.CachedStoryRepository
	narration   *repository.RedisNarrationStore
}

func (s *RepositoryIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = zap.NewNop()
	var err error

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	s.Require().NoError(err, "Failed to start postgres container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.pgPool, err = pgxpool.New(s.ctx, connStr)
	s.Require().NoError(err)
	s.Require().NoError(database.ApplyMigrations(s.pgPool, s.logger))

	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(1*time.Minute),
		),
	)
	s.Require().NoError(err, "Failed to start redis container")
	host, err := s.rdContainer.Host(s.ctx)
	s.Require().NoError(err)
	port, err := s.rdContainer.MappedPort(s.ctx, "6379/tcp")
	s.Require().NoError(err)
	s.redisClient = redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	s.Require().NoError(s.redisClient.Ping(s.ctx).Err())

	s.repo = repository.NewPgStoryRepository(s.pgPool, s.logger)
	s.cached = repository.NewCachedStoryRepository(s.repo, s.redisClient, time.Minute, s.logger)
	s.narration = repository.NewRedisNarrationStore(s.redisClient, time.Minute, s.logger)
}

func (s *RepositoryIntegrationSuite) TearDownSuite() {
	if s.pgPool != nil {
		s.pgPool.Close()
	}
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.pgContainer != nil {
		_ = s.pgContainer.Terminate(s.ctx)
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
}

func (s *RepositoryIntegrationSuite) SetupTest() {
	s.Require().NoError(s.redisClient.FlushDB(s.ctx).Err())
	_, err := s.pgPool.Exec(s.ctx, "TRUNCATE TABLE stories")
	s.Require().NoError(err)
}

func newStory(title string, depth int) *models.PersistedStory {
	history := []string{"S0"}
	decisions := []models.FlatDecision{}
	for i := 0; i < depth; i++ {
		history = append(history, fmt.Sprintf("S%d", i+1))
		decisions = append(decisions, models.FlatDecision{
			ID: fmt.Sprintf("d%d", i), Text: "Open it", Depth: i,
			AvailableOptions: []string{"Open it", "Walk away", models.FreeFormOption},
		})
	}
	return &models.PersistedStory{
		Title:          title,
		InitialPrompt:  "A locked door",
		FullHistory:    history,
		Decisions:      decisions,
		SerializedTree: json.RawMessage(`{"id":"root","children":[]}`),
	}
}

func (s *RepositoryIntegrationSuite) TestSaveGetRoundTrip() {
	story := newStory("Door", 2)

	id, err := s.repo.Save(s.ctx, story)
	s.Require().NoError(err)
	s.NotEqual(uuid.Nil, id)

	got, err := s.repo.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(story.Title, got.Title)
	s.Equal(story.FullHistory, got.FullHistory)
	s.Equal(story.Decisions, got.Decisions)
	s.JSONEq(string(story.SerializedTree), string(got.SerializedTree))
}

func (s *RepositoryIntegrationSuite) TestUpdateIsPartial() {
	story := newStory("Door", 1)
	id, err := s.repo.Save(s.ctx, story)
	s.Require().NoError(err)

	title := "Renamed"
	s.Require().NoError(s.repo.Update(s.ctx, id, models.StoryUpdate{Title: &title}))

	got, err := s.repo.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Renamed", got.Title)
	s.Equal(story.FullHistory, got.FullHistory)
	s.True(got.UpdatedAt.After(got.CreatedAt) || got.UpdatedAt.Equal(got.CreatedAt))

	s.ErrorIs(s.repo.Update(s.ctx, uuid.New(), models.StoryUpdate{Title: &title}), models.ErrNotFound)
	s.ErrorIs(s.repo.Update(s.ctx, id, models.StoryUpdate{}), models.ErrInvalidInput)
}

func (s *RepositoryIntegrationSuite) TestListNewestFirst() {
	older := newStory("older", 1)
	older.CreatedAt = time.Now().Add(-time.Hour)
	older.UpdatedAt = older.CreatedAt
	_, err := s.repo.Save(s.ctx, older)
	s.Require().NoError(err)
	_, err = s.repo.Save(s.ctx, newStory("newer", 3))
	s.Require().NoError(err)

	list, err := s.repo.List(s.ctx, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("newer", list[0].Title)
	s.Equal(3, list[0].Depth)

	page, err := s.repo.List(s.ctx, 1, 1)
	s.Require().NoError(err)
	s.Require().Len(page, 1)
	s.Equal("older", page[0].Title)
}

func (s *RepositoryIntegrationSuite) TestDelete() {
	id, err := s.repo.Save(s.ctx, newStory("Door", 0))
	s.Require().NoError(err)

	s.Require().NoError(s.repo.Delete(s.ctx, id))
	s.ErrorIs(s.repo.Delete(s.ctx, id), models.ErrNotFound)
	_, err = s.repo.Get(s.ctx, id)
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *RepositoryIntegrationSuite) TestCacheReadsThroughAndInvalidates() {
	id, err := s.cached.Save(s.ctx, newStory("Door", 1))
	s.Require().NoError(err)
	s.EqualValues(1, s.redisClient.Exists(s.ctx, "story:"+id.String()).Val())

	title := "Renamed"
	s.Require().NoError(s.cached.Update(s.ctx, id, models.StoryUpdate{Title: &title}))
	s.EqualValues(0, s.redisClient.Exists(s.ctx, "story:"+id.String()).Val())

	got, err := s.cached.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal("Renamed", got.Title)
	s.EqualValues(1, s.redisClient.Exists(s.ctx, "story:"+id.String()).Val())

	s.Require().NoError(s.cached.Delete(s.ctx, id))
	_, err = s.cached.Get(s.ctx, id)
	s.ErrorIs(err, models.ErrNotFound)
}

func (s *RepositoryIntegrationSuite) TestNarrationStore() {
	handle, err := s.narration.Put(s.ctx, []byte("ID3"))
	s.Require().NoError(err)
	s.True(repository.IsNarrationHandle(handle))

	audio, err := s.narration.Get(s.ctx, handle)
	s.Require().NoError(err)
	s.Equal([]byte("ID3"), audio)

	s.Require().NoError(s.narration.Delete(s.ctx, handle))
	_, err = s.narration.Get(s.ctx, handle)
	s.ErrorIs(err, models.ErrNotFound)
}

func TestRepositoryIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Skipf("Docker client init error: %v", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Skipf("Docker daemon is not running or accessible: %v", err)
	}
	cli.Close()

	suite.Run(t, new(RepositoryIntegrationSuite))
}
