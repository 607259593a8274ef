package handler

import "github.com/google/uuid"

// StartStoryRequest - тело POST /api/sessions/:id/start.
type StartStoryRequest struct {
	Prompt string `json:"prompt" binding:"required"`
}

// DecisionRequest - тело POST /api/sessions/:id/decisions.
type DecisionRequest struct {
	Text             string   `json:"text" binding:"required"`
	AvailableOptions []string `json:"availableOptions"`
}

// ReplayRequest - тело POST /api/sessions/:id/replay.
type ReplayRequest struct {
	NodeID string `json:"nodeId" binding:"required"`
}

// LoadStoryRequest - тело POST /api/sessions/:id/load.
type LoadStoryRequest struct {
	StoryID uuid.UUID `json:"storyId" binding:"required"`
}

// SaveStoryRequest - тело POST /api/sessions/:id/save.
type SaveStoryRequest struct {
	Title string `json:"title"`
}

// SaveStoryResponse - ответ на сохранение.
type SaveStoryResponse struct {
	StoryID uuid.UUID `json:"storyId"`
}

// TaskAcceptedResponse - ответ на асинхронный запуск действия.
type TaskAcceptedResponse struct {
	TaskID uuid.UUID `json:"taskId"`
}
