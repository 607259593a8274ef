package models

import "errors"

var (
	// Дерево и навигация
	ErrNodeNotFound      = errors.New("tree node not found")
	ErrNodeHasNoSnapshot = errors.New("tree node has no snapshot to replay")

	// Внешние генераторы
	ErrGenerationFailed     = errors.New("generation failed")
	ErrMissingConfiguration = errors.New("collaborator is not configured")

	// Хранилище
	ErrNotFound          = errors.New("resource not found")
	ErrPersistenceFailed = errors.New("persistence operation failed")

	// Сессия
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidPhase      = errors.New("action is not allowed in the current phase")
	ErrNoPendingDecision = errors.New("nothing to retry")
	ErrStaleGeneration   = errors.New("generation result is stale")

	ErrInvalidInput = errors.New("invalid input data")
)

// Коды ошибок для API
const (
	ErrCodeBadRequest       = 40001
	ErrCodeNodeHasNoContent = 40002
	ErrCodeNotFound         = 40401
	ErrCodeNodeNotFound     = 40402
	ErrCodeInvalidPhase     = 40901
	ErrCodeStale            = 40902
	ErrCodeTooManyRequests  = 42901
	ErrCodeInternal         = 50001
	ErrCodeGeneration       = 50201
	ErrCodeNotConfigured    = 50301
)

// ErrorResponse - тело ответа с ошибкой.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
