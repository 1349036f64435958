package gin_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/linksync/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
)

func TestRequestIDMiddleware_PropagatesHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(infragin.RequestIDMiddleware(logger.NewNop()))
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", http.NoBody)
	req.Header.Set(infragin.RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if got := w.Header().Get(infragin.RequestIDHeader); got != "req-123" {
		t.Errorf("response request id = %q, want req-123", got)
	}
	if w.Body.String() != "req-123" {
		t.Errorf("context request id = %q, want req-123", w.Body.String())
	}
}

func TestRecoveryMiddleware_Returns500(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(infragin.RecoveryMiddleware(logger.NewNop()))
	router.GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", http.NoBody))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestHealth_DegradedRedisStays200(t *testing.T) {
	gin.SetMode(gin.TestMode)

	server := infragin.NewServerBuilder("linksync", 8095).
		WithDatabaseHealthCheck(func() error { return nil }).
		WithRedisHealthCheck(func() error { return errors.New("redis down") }).
		Build()

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestHealth_DatabaseDownIs503(t *testing.T) {
	gin.SetMode(gin.TestMode)

	server := infragin.NewServerBuilder("linksync", 8095).
		WithDatabaseHealthCheck(func() error { return errors.New("db down") }).
		Build()

	w := httptest.NewRecorder()
	server.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
