package xhttp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type stubLimiter struct {
	allow bool
	err   error
	ttl   time.Duration
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func (s *stubLimiter) Remaining(context.Context, string) (int64, time.Duration, error) {
	return 0, s.ttl, nil
}

type allowOnly struct{}

func (allowOnly) Allow(context.Context, string) (bool, error) { return false, nil }

func run(mw MiddlewareFunc, setup func(ctx *fasthttp.RequestCtx)) (*fasthttp.RequestCtx, bool) {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(fasthttp.MethodPost)
	ctx.Request.SetRequestURI("/api/v1/jobs")
	if setup != nil {
		setup(ctx)
	}
	called := false
	mw(func(*fasthttp.RequestCtx) { called = true })(ctx)
	return ctx, called
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("keyed by client ip", func(t *testing.T) {
		l := &stubLimiter{allow: true}
		for _, principal := range []string{"user-1", "user-2"} {
			_, called := run(RateLimitMiddleware(l), func(ctx *fasthttp.RequestCtx) {
				ctx.Request.Header.Set("X-Principal-Id", principal)
			})
			assert.True(t, called)
		}
		require.Len(t, l.keys, 2)
		assert.Equal(t, l.keys[0], l.keys[1], "rotating X-Principal-Id does not open a new window")
		assert.True(t, strings.HasPrefix(l.keys[0], "ip:"))
	})

	t.Run("payment webhook exempt", func(t *testing.T) {
		l := &stubLimiter{}
		_, called := run(RateLimitMiddleware(l), func(ctx *fasthttp.RequestCtx) {
			ctx.Request.SetRequestURI("/api/v1/webhooks/payments")
		})
		assert.True(t, called)
		assert.Empty(t, l.keys)
	})

	t.Run("rejected with window reset", func(t *testing.T) {
		l := &stubLimiter{ttl: 2500 * time.Millisecond}
		ctx, called := run(RateLimitMiddleware(l), nil)
		assert.False(t, called)
		assert.Equal(t, StatusTooManyRequests, ctx.Response.StatusCode())
		assert.Equal(t, "3", string(ctx.Response.Header.Peek("Retry-After")))
		assert.JSONEq(t, `{"error":"rate_limited","message":"too many requests"}`, string(ctx.Response.Body()))
	})

	t.Run("rejected without window info", func(t *testing.T) {
		ctx, _ := run(RateLimitMiddleware(allowOnly{}), nil)
		assert.Equal(t, "1", string(ctx.Response.Header.Peek("Retry-After")))
	})

	t.Run("fails open", func(t *testing.T) {
		l := &stubLimiter{err: errors.New("redis down")}
		_, called := run(RateLimitMiddleware(l), nil)
		assert.True(t, called)
	})

	t.Run("health skipped", func(t *testing.T) {
		l := &stubLimiter{}
		_, called := run(RateLimitMiddleware(l), func(ctx *fasthttp.RequestCtx) {
			ctx.Request.SetRequestURI("/api/v1/health")
		})
		assert.True(t, called)
		assert.Empty(t, l.keys)
	})
}
