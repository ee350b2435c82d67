package handlers

import (
	"context"
	"errors"
	"testing"

	xhttp "github.com/Pguillen87/arcanum-ai-sub001/pkg/http"
	"github.com/stretchr/testify/assert"
)

type healthFunc func(ctx context.Context) (map[string]string, error)

func (f healthFunc) Check(ctx context.Context) (map[string]string, error) { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := NewHealthHandler(healthFunc(func(context.Context) (map[string]string, error) {
			return map[string]string{"postgres": "ok", "redis": "ok"}, nil
		}))
		ctx := setupTestContext("GET", "/api/v1/health", nil)
		h.GetHealth(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"status":"ok","components":{"postgres":"ok","redis":"ok"}}`, string(ctx.Response.Body()))
	})

	t.Run("unhealthy", func(t *testing.T) {
		h := NewHealthHandler(healthFunc(func(context.Context) (map[string]string, error) {
			return map[string]string{"postgres": "ok", "redis": "connection refused"}, errors.New("unhealthy")
		}))
		ctx := setupTestContext("GET", "/api/v1/health", nil)
		h.GetHealth(ctx)

		assert.Equal(t, xhttp.StatusServiceUnavailable, ctx.Response.StatusCode())
		assert.Equal(t, "unhealthy", decodeBody(t, ctx)["status"])
	})
}
