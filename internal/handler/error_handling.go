package handler

import (
	"errors"
	"net/http"

	"narrative-server/internal/models"
	"narrative-server/pkg/taskmanager"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleServiceError переводит ошибку в HTTP статус и тело ErrorResponse.
func (h *StoryHandler) handleServiceError(c *gin.Context, err error) {
	status, resp := mapError(err)

	fields := []zap.Field{
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", fields...)
	} else {
		h.logger.Warn("Request rejected", fields...)
	}
	c.AbortWithStatusJSON(status, resp)
}

func mapError(err error) (int, models.ErrorResponse) {
	switch {
	case errors.Is(err, models.ErrMissingConfiguration):
		return http.StatusServiceUnavailable, models.ErrorResponse{Code: models.ErrCodeNotConfigured, Message: "Generation is not configured on this server"}
	case errors.Is(err, models.ErrNodeNotFound):
		return http.StatusNotFound, models.ErrorResponse{Code: models.ErrCodeNodeNotFound, Message: err.Error()}
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrNotFound),
		errors.Is(err, taskmanager.ErrTaskNotFound):
		return http.StatusNotFound, models.ErrorResponse{Code: models.ErrCodeNotFound, Message: "Resource not found"}
	case errors.Is(err, models.ErrNodeHasNoSnapshot):
		return http.StatusBadRequest, models.ErrorResponse{Code: models.ErrCodeNodeHasNoContent, Message: err.Error()}
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest, models.ErrorResponse{Code: models.ErrCodeBadRequest, Message: err.Error()}
	case errors.Is(err, models.ErrInvalidPhase), errors.Is(err, models.ErrNoPendingDecision):
		return http.StatusConflict, models.ErrorResponse{Code: models.ErrCodeInvalidPhase, Message: err.Error()}
	case errors.Is(err, models.ErrStaleGeneration):
		return http.StatusConflict, models.ErrorResponse{Code: models.ErrCodeStale, Message: "Superseded by a newer request"}
	case errors.Is(err, taskmanager.ErrTooManyTasks):
		return http.StatusTooManyRequests, models.ErrorResponse{Code: models.ErrCodeTooManyRequests, Message: err.Error()}
	case errors.Is(err, models.ErrGenerationFailed):
		return http.StatusBadGateway, models.ErrorResponse{Code: models.ErrCodeGeneration, Message: "Story generation failed, try again"}
	default:
		return http.StatusInternalServerError, models.ErrorResponse{Code: models.ErrCodeInternal, Message: "Internal server error"}
	}
}

func badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{Code: models.ErrCodeBadRequest, Message: message})
}
