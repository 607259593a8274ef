package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"narrative-server/internal/messaging"
	"narrative-server/internal/models"
	"narrative-server/internal/repository"
	"narrative-server/internal/session"
	"narrative-server/pkg/taskmanager"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// NarrationReader отдает сохраненное аудио озвучки.
type NarrationReader interface {
	Get(ctx context.Context, handle string) ([]byte, error)
}

// StoryHandler обслуживает HTTP API сессий и сохраненных историй.
type StoryHandler struct {
	sessions  *session.Manager
	stories   repository.StoryRepository
	narration NarrationReader
	tasks     *taskmanager.TaskManager
	events    messaging.StoryEventPublisher
	logger    *zap.Logger
}

// NewStoryHandler создает StoryHandler. narration и events могут быть nil.
func NewStoryHandler(
	sessions *session.Manager,
	stories repository.StoryRepository,
	narration NarrationReader,
	tasks *taskmanager.TaskManager,
	events messaging.StoryEventPublisher,
	logger *zap.Logger,
) *StoryHandler {
	if events == nil {
		events = messaging.NoopStoryEventPublisher{}
	}
	return &StoryHandler{
		sessions:  sessions,
		stories:   stories,
		narration: narration,
		tasks:     tasks,
		events:    events,
		logger:    logger.Named("StoryHandler"),
	}
}

// RegisterRoutes регистрирует маршруты. generationLimit ограничивает частоту
// действий, которые вызывают генерацию; nil - без ограничения.
func (h *StoryHandler) RegisterRoutes(router gin.IRouter, generationLimit gin.HandlerFunc) {
	limited := []gin.HandlerFunc{}
	if generationLimit != nil {
		limited = append(limited, generationLimit)
	}

	api := router.Group("/api")

	sessions := api.Group("/sessions")
	{
		sessions.POST("", h.createSession)
		sessions.GET("/:id", h.getSession)
		sessions.DELETE("/:id", h.deleteSession)
		sessions.GET("/:id/tree", h.getTree)
		sessions.POST("/:id/start", append(limited, h.startStory)...)
		sessions.POST("/:id/decisions", append(limited, h.makeDecision)...)
		sessions.POST("/:id/decisions/retry", append(limited, h.retryDecision)...)
		sessions.POST("/:id/end", append(limited, h.endStory)...)
		sessions.POST("/:id/replay", append(limited, h.replay)...)
		sessions.POST("/:id/load", h.loadStory)
		sessions.POST("/:id/save", h.saveStory)
	}

	stories := api.Group("/stories")
	{
		stories.GET("", h.listStories)
		stories.GET("/:id", h.getStory)
		stories.DELETE("/:id", h.deleteStory)
	}

	api.GET("/tasks/:id", h.getTask)
	api.DELETE("/tasks/:id", h.cancelTask)
	api.GET("/narration/:id", h.getNarration)
}

// --- Вспомогательные функции --- //

func parseUUIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *StoryHandler) sessionFromParam(c *gin.Context) (*session.Session, bool) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return nil, false
	}
	s, err := h.sessions.Get(id)
	if err != nil {
		h.handleServiceError(c, err)
		return nil, false
	}
	return s, true
}

// runAction выполняет действие сессии синхронно или, при ?async=true, через менеджер задач.
func (h *StoryHandler) runAction(c *gin.Context, s *session.Session, action func(ctx context.Context) error) {
	if async, _ := strconv.ParseBool(c.Query("async")); async && h.tasks != nil {
		taskID, err := h.tasks.Submit(s.ID().String(), func(ctx context.Context) (interface{}, error) {
			if err := action(ctx); err != nil {
				return nil, err
			}
			return s.View(), nil
		})
		if err != nil {
			h.handleServiceError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, TaskAcceptedResponse{TaskID: taskID})
		return
	}

	if err := action(c.Request.Context()); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func parsePaging(c *gin.Context) (limit, offset int, ok bool) {
	limit, offset = defaultListLimit, 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = min(n, maxListLimit)
	}
	if v := c.Query("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(c, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

func (h *StoryHandler) publish(ctx context.Context, event models.StoryEvent) {
	event.OccurredAt = time.Now().UTC()
	if err := h.events.PublishStoryEvent(ctx, event); err != nil {
		h.logger.Warn("Failed to publish story event", zap.String("type", string(event.Type)), zap.Error(err))
	}
}
