package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"narrative-server/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggingMiddlewareForGin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	router := gin.New()
	router.Use(middleware.ZapLoggingMiddlewareForGin(zap.New(core)))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/api/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	t.Run("health is not logged", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, 0, logs.Len())
	})

	t.Run("client error is logged as warn with request id", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/abc?x=1", nil)
		req.Header.Set("X-Request-ID", "req-1")
		router.ServeHTTP(w, req)

		entries := logs.TakeAll()
		if assert.Len(t, entries, 1) {
			assert.Equal(t, "Client error", entries[0].Message)
			assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
			assert.Equal(t, "/api/sessions/abc?x=1", entries[0].ContextMap()["path"])
		}
		assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	})
}
