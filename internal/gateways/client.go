package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/prom"
	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
)

const maxErrorBody = 512

// Config is shared by every upstream client.
type Config struct {
	// Name labels logs and metrics, e.g. "llm" or "stt".
	Name    string
	BaseURL string
	APIKey  string
	// Timeout applies to each attempt.
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxConns    int
	// MaxResponseBytes caps the response body. Zero keeps the fasthttp default.
	MaxResponseBytes int
	// Dial overrides the connection dialer. Tests use an in-memory listener.
	Dial fasthttp.DialFunc
}

func (c *Config) setDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 64
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

type response struct {
	status      int
	body        []byte
	contentType string
}

// apiClient runs requests with bounded exponential backoff. Only transport
// failures are retried; any HTTP response is final.
type apiClient struct {
	cfg     Config
	client  *fasthttp.Client
	metrics *ProviderMetrics
}

func newAPIClient(cfg Config) *apiClient {
	cfg.setDefaults()
	return &apiClient{
		cfg: cfg,
		client: &fasthttp.Client{
			Name:                "arcanum-gateway",
			MaxConnsPerHost:     cfg.MaxConns,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			MaxResponseBodySize: cfg.MaxResponseBytes,
			Dial:                cfg.Dial,
		},
		metrics: NewProviderMetrics(),
	}
}

func (c *apiClient) Stats() ProviderStats {
	m := c.metrics
	return ProviderStats{
		Name:             c.cfg.Name,
		BaseURL:          c.cfg.BaseURL,
		TotalRequests:    m.TotalRequests.Load(),
		SuccessfulReqs:   m.SuccessfulReqs.Load(),
		FailedReqs:       m.FailedReqs.Load(),
		SuccessRate:      m.SuccessRate(),
		AvgLatencyMs:     m.AvgLatencyMs(),
		P95LatencyMs:     m.P95LatencyMs(),
		LastLatencyMs:    m.LastLatencyMs.Load(),
		ConsecutiveFails: m.ConsecutiveFails.Load(),
	}
}

func (c *apiClient) backoff() retry.Backoff {
	b := retry.NewExponential(c.cfg.BaseDelay)
	b = retry.WithCappedDuration(c.cfg.MaxDelay, b)
	return retry.WithMaxRetries(uint64(c.cfg.MaxAttempts-1), b)
}

// do sends the request built by prepare and returns a 2xx response. Errors
// wrap one of the model upstream errors.
func (c *apiClient) do(ctx context.Context, op string, prepare func(req *fasthttp.Request)) (*response, error) {
	start := time.Now()
	attempts := 0
	var out *response

	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		attempts++
		resp, err := c.once(ctx, prepare)
		if err != nil {
			logger.Warn("upstream call failed", "api", c.cfg.Name, "op", op, "attempt", attempts, "error", err)
			return retry.RetryableError(err)
		}
		if err := classify(op, resp); err != nil {
			return err
		}
		out = resp
		return nil
	})

	prom.ExternalCall(time.Since(start).Seconds(), c.cfg.Name, outcome(err))
	if err != nil {
		if errors.Is(err, model.ErrTransport) {
			return nil, fmt.Errorf("%s failed after %d attempts: %w", op, attempts, err)
		}
		return nil, err
	}
	return out, nil
}

func (c *apiClient) once(ctx context.Context, prepare func(req *fasthttp.Request)) (*response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	prepare(req)
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	start := time.Now()
	err := c.client.DoDeadline(req, resp, deadline)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		c.metrics.RecordFailure(latency)
		return nil, fmt.Errorf("%w: %v", model.ErrTransport, err)
	}

	status := resp.StatusCode()
	if status >= 200 && status < 300 {
		c.metrics.RecordSuccess(latency)
	} else {
		c.metrics.RecordFailure(latency)
	}
	return &response{
		status:      status,
		body:        append([]byte(nil), resp.Body()...),
		contentType: string(resp.Header.ContentType()),
	}, nil
}

func classify(op string, r *response) error {
	switch {
	case r.status >= 200 && r.status < 300:
		return nil
	case r.status == fasthttp.StatusTooManyRequests:
		return fmt.Errorf("%w: %s returned %d: %s", model.ErrRateLimited, op, r.status, snippet(r.body))
	case r.status >= 400 && r.status < 500:
		return fmt.Errorf("%w: %s returned %d: %s", model.ErrInvalidRequest, op, r.status, snippet(r.body))
	case r.status >= 500:
		return fmt.Errorf("%w: %s returned %d: %s", model.ErrUpstreamUnavailable, op, r.status, snippet(r.body))
	default:
		return fmt.Errorf("%w: %s returned unexpected status %d", model.ErrProtocol, op, r.status)
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrTransport):
		return "transport"
	case errors.Is(err, model.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, model.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, model.ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, model.ErrProtocol):
		return "protocol"
	default:
		return "canceled"
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) <= maxErrorBody {
		return s
	}
	s = s[:maxErrorBody]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s + "..."
}

func protocolError(op string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", model.ErrProtocol, op, fmt.Sprintf(format, args...))
}
