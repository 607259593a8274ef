package handler

import (
	"net/http"

	"narrative-server/internal/models"
	"narrative-server/internal/repository"

	"github.com/gin-gonic/gin"
)

func (h *StoryHandler) listStories(c *gin.Context) {
	limit, offset, ok := parsePaging(c)
	if !ok {
		return
	}
	summaries, err := h.stories.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	if summaries == nil {
		summaries = []models.StorySummary{}
	}
	c.JSON(http.StatusOK, gin.H{"data": summaries, "limit": limit, "offset": offset})
}

func (h *StoryHandler) getStory(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	story, err := h.stories.Get(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, story)
}

func (h *StoryHandler) deleteStory(c *gin.Context) {
	id, ok := parseUUIDParam(c)
	if !ok {
		return
	}
	if err := h.stories.Delete(c.Request.Context(), id); err != nil {
		h.handleServiceError(c, err)
		return
	}
	h.publish(c.Request.Context(), models.StoryEvent{Type: models.EventStoryDeleted, StoryID: &id})
	c.Status(http.StatusNoContent)
}

// getNarration отдает mp3 озвучки по handle из снимка.
func (h *StoryHandler) getNarration(c *gin.Context) {
	handle := c.Param("id")
	if h.narration == nil || !repository.IsNarrationHandle(handle) {
		h.handleServiceError(c, models.ErrNotFound)
		return
	}
	audio, err := h.narration.Get(c.Request.Context(), handle)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", audio)
}
