package handler

import (
	"context"
	"net/http"

	"narrative-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func (h *StoryHandler) createSession(c *gin.Context) {
	s := h.sessions.Create()
	c.JSON(http.StatusCreated, s.View())
}

func (h *StoryHandler) getSession(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h *StoryHandler) deleteSession(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	if err := h.sessions.Remove(id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *StoryHandler) getTree(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Tree())
}

func (h *StoryHandler) startStory(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	var req StartStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "prompt is required")
		return
	}
	h.runAction(c, s, func(ctx context.Context) error {
		return s.StartStory(ctx, req.Prompt)
	})
}

func (h *StoryHandler) makeDecision(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "decision text is required")
		return
	}
	h.runAction(c, s, func(ctx context.Context) error {
		return s.MakeDecision(ctx, req.Text, req.AvailableOptions)
	})
}

func (h *StoryHandler) retryDecision(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	h.runAction(c, s, s.RetryDecision)
}

func (h *StoryHandler) endStory(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	h.runAction(c, s, s.EndStory)
}

func (h *StoryHandler) replay(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	var req ReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "nodeId is required")
		return
	}
	h.runAction(c, s, func(ctx context.Context) error {
		return s.ReplayFromNode(ctx, req.NodeID)
	})
}

func (h *StoryHandler) loadStory(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	var req LoadStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.StoryID == uuid.Nil {
		badRequest(c, "storyId is required")
		return
	}
	h.runAction(c, s, func(ctx context.Context) error {
		return s.LoadStory(ctx, req.StoryID)
	})
}

func (h *StoryHandler) saveStory(c *gin.Context) {
	s, ok := h.sessionFromParam(c)
	if !ok {
		return
	}
	var req SaveStoryRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid request body")
			return
		}
	}
	id, err := s.SaveStory(c.Request.Context(), req.Title)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, SaveStoryResponse{StoryID: id})
}

// getTask возвращает статус асинхронного действия.
func (h *StoryHandler) getTask(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	if h.tasks == nil {
		h.handleServiceError(c, models.ErrNotFound)
		return
	}
	task, err := h.tasks.GetTask(id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *StoryHandler) cancelTask(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	if h.tasks == nil {
		h.handleServiceError(c, models.ErrNotFound)
		return
	}
	if _, err := h.tasks.GetTask(id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	if err := h.tasks.CancelTask(id); err != nil {
		c.AbortWithStatusJSON(http.StatusConflict, models.ErrorResponse{Code: models.ErrCodeInvalidPhase, Message: err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
