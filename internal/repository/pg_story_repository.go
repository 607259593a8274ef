package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"narrative-server/internal/models"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

const (
	insertStoryQuery = `
        INSERT INTO stories
            (id, title, initial_prompt, full_history, decisions, serialized_tree, created_at, updated_at)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	getStoryQuery = `
        SELECT id, title, initial_prompt, full_history, decisions, serialized_tree, created_at, updated_at
        FROM stories
        WHERE id = $1
    `
	listStoriesQuery = `
        SELECT id, title, initial_prompt, jsonb_array_length(decisions) AS depth, created_at, updated_at
        FROM stories
        ORDER BY updated_at DESC, id
        LIMIT $1 OFFSET $2
    `
	deleteStoryQuery = `DELETE FROM stories WHERE id = $1`
)

// Compile-time check
var _ StoryRepository = (*pgStoryRepository)(nil)

type pgStoryRepository struct {
	db     DBTX
	logger *zap.Logger
}

func NewPgStoryRepository(db DBTX, logger *zap.Logger) StoryRepository {
	return &pgStoryRepository{
		db:     db,
		logger: logger.Named("PgStoryRepo"),
	}
}

// storyRow - строка таблицы stories, jsonb колонки читаются как есть.
type storyRow struct {
	ID             uuid.UUID `db:"id"`
	Title          string    `db:"title"`
	InitialPrompt  string    `db:"initial_prompt"`
	FullHistory    []byte    `db:"full_history"`
	Decisions      []byte    `db:"decisions"`
	SerializedTree []byte    `db:"serialized_tree"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (row storyRow) toModel() (*models.PersistedStory, error) {
	story := &models.PersistedStory{
		ID:            row.ID,
		Title:         row.Title,
		InitialPrompt: row.InitialPrompt,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
	if err := json.Unmarshal(row.FullHistory, &story.FullHistory); err != nil {
		return nil, fmt.Errorf("decode full_history: %w", err)
	}
	if err := json.Unmarshal(row.Decisions, &story.Decisions); err != nil {
		return nil, fmt.Errorf("decode decisions: %w", err)
	}
	if len(row.SerializedTree) > 0 {
		story.SerializedTree = json.RawMessage(row.SerializedTree)
	}
	return story, nil
}

func marshalJSONB(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	return data, nil
}

// nullableTree - пустое дерево хранится как NULL.
func nullableTree(tree json.RawMessage) interface{} {
	if len(tree) == 0 {
		return nil
	}
	return []byte(tree)
}

func (r *pgStoryRepository) Save(ctx context.Context, story *models.PersistedStory) (uuid.UUID, error) {
	if story.ID == uuid.Nil {
		story.ID = uuid.New()
	}
	now := time.Now().UTC()
	if story.CreatedAt.IsZero() {
		story.CreatedAt = now
	}
	if story.UpdatedAt.IsZero() {
		story.UpdatedAt = story.CreatedAt
	}
	if story.FullHistory == nil {
		story.FullHistory = []string{}
	}
	if story.Decisions == nil {
		story.Decisions = []models.FlatDecision{}
	}
	logFields := []zap.Field{zap.String("storyID", story.ID.String())}

	history, err := marshalJSONB(story.FullHistory)
	if err != nil {
		return uuid.Nil, err
	}
	decisions, err := marshalJSONB(story.Decisions)
	if err != nil {
		return uuid.Nil, err
	}

	_, err = r.db.Exec(ctx, insertStoryQuery,
		story.ID,
		story.Title,
		story.InitialPrompt,
		history,
		decisions,
		nullableTree(story.SerializedTree),
		story.CreatedAt,
		story.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save story", append(logFields, zap.Error(err))...)
		return uuid.Nil, fmt.Errorf("ошибка сохранения истории: %w", err)
	}
	r.logger.Info("Story saved", logFields...)
	return story.ID, nil
}

func (r *pgStoryRepository) Update(ctx context.Context, id uuid.UUID, update models.StoryUpdate) error {
	logFields := []zap.Field{zap.String("storyID", id.String())}
	if update.IsEmpty() {
		return fmt.Errorf("%w: empty update", models.ErrInvalidInput)
	}

	setClauses := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)
	add := func(column string, value interface{}) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.Title != nil {
		add("title", *update.Title)
	}
	if update.FullHistory != nil {
		data, err := marshalJSONB(update.FullHistory)
		if err != nil {
			return err
		}
		add("full_history", data)
	}
	if update.Decisions != nil {
		data, err := marshalJSONB(update.Decisions)
		if err != nil {
			return err
		}
		add("decisions", data)
	}
	if update.SerializedTree != nil {
		add("serialized_tree", []byte(update.SerializedTree))
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	query := fmt.Sprintf("UPDATE stories SET %s WHERE id = $%d", strings.Join(setClauses, ", "), len(args))
	commandTag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update story", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка обновления истории %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Attempted to update non-existent story", logFields...)
		return models.ErrNotFound
	}
	r.logger.Info("Story updated", logFields...)
	return nil
}

func (r *pgStoryRepository) List(ctx context.Context, limit, offset int) ([]models.StorySummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	summaries := make([]models.StorySummary, 0, limit)
	if err := pgxscan.Select(ctx, r.db, &summaries, listStoriesQuery, limit, offset); err != nil {
		r.logger.Error("Failed to list stories", zap.Int("limit", limit), zap.Int("offset", offset), zap.Error(err))
		return nil, fmt.Errorf("ошибка получения списка историй: %w", err)
	}
	return summaries, nil
}

func (r *pgStoryRepository) Get(ctx context.Context, id uuid.UUID) (*models.PersistedStory, error) {
	logFields := []zap.Field{zap.String("storyID", id.String())}
	var row storyRow
	if err := pgxscan.Get(ctx, r.db, &row, getStoryQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Story not found", logFields...)
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get story", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("ошибка получения истории %s: %w", id, err)
	}
	story, err := row.toModel()
	if err != nil {
		r.logger.Error("Stored story is corrupt", append(logFields, zap.Error(err))...)
		return nil, fmt.Errorf("история %s повреждена: %w", id, err)
	}
	return story, nil
}

func (r *pgStoryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	logFields := []zap.Field{zap.String("storyID", id.String())}
	commandTag, err := r.db.Exec(ctx, deleteStoryQuery, id)
	if err != nil {
		r.logger.Error("Failed to delete story", append(logFields, zap.Error(err))...)
		return fmt.Errorf("ошибка удаления истории %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		r.logger.Warn("Attempted to delete non-existent story", logFields...)
		return models.ErrNotFound
	}
	r.logger.Info("Story deleted", logFields...)
	return nil
}
