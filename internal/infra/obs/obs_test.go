package obs

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestJSONLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, "prod", slog.LevelWarn)
	logger.Info("hidden")
	logger.Warn("shown", "proposal_id", "p1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"proposal_id":"p1"`)
}

func TestRequestIDPropagates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Middleware{}.RequestID())
	var seen string
	router.GET("/", func(c *gin.Context) {
		seen = RequestIDFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestReadyzReportsFailingChecks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	health := HealthHandlers{Checks: map[string]Check{
		"mongo": func(context.Context) error { return errors.New("no primary") },
		"redis": func(context.Context) error { return nil },
	}}
	router.GET("/readyz", health.Readyz)
	router.GET("/livez", health.Livez)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no primary")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
