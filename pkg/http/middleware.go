package xhttp

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const slowThreshold = 500 * time.Millisecond

const HeaderRequestID = "X-Request-Id"

var skipPaths = []string{"/api/v1/health", "/metrics"}

// payment providers retry in bursts and must never see a 429
var rateLimitExempt = append([]string{"/api/v1/webhooks/"}, skipPaths...)

type MiddlewareFunc func(next RequestHandler) RequestHandler
type RequestCtx = fasthttp.RequestCtx
type RequestHandler = fasthttp.RequestHandler

func TimeoutMiddleware(timeout time.Duration) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return fasthttp.TimeoutWithCodeHandler(next, timeout, StatusText(StatusRequestTimeout), StatusRequestTimeout)
	}
}

func RecoverMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		defer func() {
			if err := recover(); err != nil {
				ctx.Error(StatusText(StatusInternalServerError), StatusInternalServerError)
				logger.Error("[xhttp] panic recovered", "error", err, "path", string(ctx.Path()))
			}
		}()
		next(ctx)
	}
}

// RequestIDMiddleware makes sure every request and response carries an X-Request-Id.
func RequestIDMiddleware(next RequestHandler) RequestHandler {
	return func(ctx *RequestCtx) {
		rid := requestID(ctx)
		if rid == "" {
			rid = uuid.NewString()
			ctx.Request.Header.Set(HeaderRequestID, rid)
		}
		ctx.Response.Header.Set(HeaderRequestID, rid)
		next(ctx)
	}
}

func RequestLoggerMiddleware(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		if shouldSkip(path) {
			next(ctx)
			return
		}

		start := time.Now()
		next(ctx)

		latency := time.Since(start)
		status := ctx.Response.StatusCode()
		fields := []any{
			"status", status,
			"method", string(ctx.Method()),
			"path", path,
			"latency", latency.String(),
			"bytes_in", len(ctx.PostBody()),
			"bytes_out", len(ctx.Response.Body()),
			"ip", ctx.RemoteIP().String(),
			"request_id", requestID(ctx),
		}

		lg := logger.GetLogger()
		switch {
		case status >= 500:
			lg.Error("http_request", fields...)
		case status >= 400 || latency > slowThreshold:
			lg.Warn("http_request", fields...)
		default:
			lg.Info("http_request", fields...)
		}
	}
}

// CORSOptions configures CORSMiddleware.
type CORSOptions struct {
	AllowOrigin  string
	AllowMethods string
	AllowHeaders string
	MaxAge       time.Duration
}

// CORSMiddleware sets CORS headers on every response and answers preflight
// requests with 204.
func CORSMiddleware(opts CORSOptions) MiddlewareFunc {
	if opts.AllowOrigin == "" {
		opts.AllowOrigin = "*"
	}
	if opts.AllowMethods == "" {
		opts.AllowMethods = "GET, POST, OPTIONS"
	}
	if opts.AllowHeaders == "" {
		opts.AllowHeaders = "Content-Type, Authorization, Idempotency-Key, X-Request-Id, X-Principal-Id"
	}
	maxAge := strconv.Itoa(int(opts.MaxAge.Seconds()))

	return func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			h := &ctx.Response.Header
			h.Set("Access-Control-Allow-Origin", opts.AllowOrigin)
			h.Set("Access-Control-Allow-Methods", opts.AllowMethods)
			h.Set("Access-Control-Allow-Headers", opts.AllowHeaders)
			if opts.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", maxAge)
			}
			if ctx.IsOptions() {
				ctx.SetStatusCode(StatusNoContent)
				return
			}
			next(ctx)
		}
	}
}

// RateLimiter decides whether one more request for key is allowed.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// windowReporter is implemented by limiters that can tell when a key's
// window resets.
type windowReporter interface {
	Remaining(ctx context.Context, key string) (int64, time.Duration, error)
}

// RateLimitMiddleware rejects requests over the limiter's budget with 429.
// Limiter errors let the request through.
func RateLimitMiddleware(limiter RateLimiter) MiddlewareFunc {
	return func(next RequestHandler) RequestHandler {
		return func(ctx *RequestCtx) {
			if hasPrefix(string(ctx.Path()), rateLimitExempt) || ctx.IsOptions() {
				next(ctx)
				return
			}
			key := RateLimitKey(ctx)
			allowed, err := limiter.Allow(ctx, key)
			if err != nil {
				logger.Warn("[xhttp] rate limiter unavailable, allowing request", "error", err)
				next(ctx)
				return
			}
			if !allowed {
				ctx.Response.Header.Set("Retry-After", retryAfter(ctx, limiter, key))
				ctx.SetContentType("application/json")
				ctx.SetStatusCode(StatusTooManyRequests)
				ctx.SetBodyString(`{"error":"rate_limited","message":"too many requests"}`)
				return
			}
			next(ctx)
		}
	}
}

func retryAfter(ctx context.Context, limiter RateLimiter, key string) string {
	wr, ok := limiter.(windowReporter)
	if !ok {
		return "1"
	}
	_, ttl, err := wr.Remaining(ctx, key)
	if err != nil || ttl <= 0 {
		return "1"
	}
	return strconv.Itoa(int(math.Ceil(ttl.Seconds())))
}

// RateLimitKey identifies the caller by client IP. Caller-supplied headers
// are not authenticated and are not used.
func RateLimitKey(ctx *RequestCtx) string {
	return "ip:" + ctx.RemoteIP().String()
}

func shouldSkip(p string) bool {
	return hasPrefix(p, skipPaths)
}

func hasPrefix(p string, prefixes []string) bool {
	for _, sp := range prefixes {
		if strings.HasPrefix(p, sp) {
			return true
		}
	}
	return false
}

func requestID(ctx *fasthttp.RequestCtx) string {
	if v := ctx.Request.Header.Peek(HeaderRequestID); len(v) > 0 {
		return string(v)
	}
	return ""
}
