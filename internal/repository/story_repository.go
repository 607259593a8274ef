package repository

import (
	"context"

	"narrative-server/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX - общий интерфейс для *pgxpool.Pool и pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// StoryRepository - хранилище сохраненных историй.
type StoryRepository interface {
	// Save создает документ. Пустой ID генерируется. Возвращает ID документа.
	Save(ctx context.Context, story *models.PersistedStory) (uuid.UUID, error)
	// Update частично обновляет документ: nil поля не трогаются.
	// Возвращает models.ErrNotFound, если документа нет.
	Update(ctx context.Context, id uuid.UUID, update models.StoryUpdate) error
	// List возвращает краткую информацию, новые сверху (по updated_at).
	List(ctx context.Context, limit, offset int) ([]models.StorySummary, error)
	// Get возвращает документ или models.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*models.PersistedStory, error)
	// Delete удаляет документ или возвращает models.ErrNotFound.
	Delete(ctx context.Context, id uuid.UUID) error
}
