package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthEndpoints(t *testing.T) {
	h := NewHealthHandler("1.2.3", zap.NewNop())
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	for _, path := range []string{"/health", "/healthz"} {
		rec := doJSON(t, mux, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Body.String(), `"healthy"`)
	}

	rec := doJSON(t, mux, http.MethodGet, "/version", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.2.3")
}

func TestHandleReady(t *testing.T) {
	h := NewHealthHandler("dev", zap.NewNop())
	h.RegisterCheck(PingCheck{
		CheckName: "redis",
		Ping:      func(ctx context.Context) error { return nil },
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := doJSON(t, mux, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pass"`)
}

func TestHandleReady_FailingCheck(t *testing.T) {
	h := NewHealthHandler("dev", zap.NewNop())
	h.RegisterCheck(PingCheck{
		CheckName: "redis",
		Ping:      func(ctx context.Context) error { return errors.New("connection refused") },
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	rec := doJSON(t, mux, http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}
