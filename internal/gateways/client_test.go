package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{200, nil},
		{204, nil},
		{429, model.ErrRateLimited},
		{400, model.ErrInvalidRequest},
		{401, model.ErrInvalidRequest},
		{413, model.ErrInvalidRequest},
		{500, model.ErrUpstreamUnavailable},
		{503, model.ErrUpstreamUnavailable},
		{302, model.ErrProtocol},
	}
	for _, tc := range cases {
		err := classify("op", &response{status: tc.status, body: []byte("detail")})
		if tc.want == nil {
			assert.NoError(t, err, "status %d", tc.status)
			continue
		}
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestSnippetTruncates(t *testing.T) {
	long := strings.Repeat("é", maxErrorBody)
	s := snippet([]byte(long))
	assert.True(t, strings.HasSuffix(s, "..."))
	assert.LessOrEqual(t, len(s), maxErrorBody+3)
	assert.Equal(t, "short", snippet([]byte("  short \n")))
}

func TestDo_HTTPErrorsAreNotRetried(t *testing.T) {
	for _, status := range []int{429, 400, 503} {
		cfg, up := serve(t, func(ctx *fasthttp.RequestCtx, _ int32) {
			ctx.SetStatusCode(status)
			ctx.SetBodyString(`{"error":"nope"}`)
		})
		c := newAPIClient(cfg)

		_, err := c.do(context.Background(), "ping", func(req *fasthttp.Request) {
			req.SetRequestURI(c.cfg.BaseURL + "/ping")
		})
		require.Error(t, err)
		assert.Equal(t, int32(1), up.calls.Load(), "status %d", status)
		assert.Contains(t, err.Error(), "nope")
		assert.Equal(t, int64(1), c.Stats().FailedReqs)
	}
}

func TestDo_TransportErrorsRetryThenFail(t *testing.T) {
	cfg := refusing()
	c := newAPIClient(cfg)

	var prepared int
	_, err := c.do(context.Background(), "ping", func(req *fasthttp.Request) {
		prepared++
		req.SetRequestURI(c.cfg.BaseURL + "/ping")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrTransport))
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Equal(t, 3, prepared)
	assert.Equal(t, int32(3), c.Stats().ConsecutiveFails)
}

func TestDo_CanceledContext(t *testing.T) {
	c := newAPIClient(refusing())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.do(ctx, "ping", func(req *fasthttp.Request) {
		req.SetRequestURI(c.cfg.BaseURL + "/ping")
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDo_SendsBearerToken(t *testing.T) {
	cfg, _ := serve(t, func(ctx *fasthttp.RequestCtx, _ int32) {
		if string(ctx.Request.Header.Peek("Authorization")) != "Bearer sk-test-key" {
			ctx.SetStatusCode(401)
			return
		}
		ctx.SetBodyString("ok")
	})
	c := newAPIClient(cfg)
	assert.Equal(t, "http://upstream.test/v1", c.cfg.BaseURL)

	resp, err := c.do(context.Background(), "ping", func(req *fasthttp.Request) {
		req.SetRequestURI(c.cfg.BaseURL + "/ping")
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.body))
}

func TestProviderMetrics(t *testing.T) {
	m := NewProviderMetrics()
	m.RecordSuccess(100)
	m.RecordSuccess(200)
	m.RecordFailure(300)

	assert.Equal(t, int64(3), m.TotalRequests.Load())
	assert.Equal(t, int64(200), m.AvgLatencyMs())
	assert.InDelta(t, 0.666, m.SuccessRate(), 0.01)
	assert.Equal(t, int32(1), m.ConsecutiveFails.Load())

	for i := int64(0); i < 100; i++ {
		m.RecordSuccess(i * 10)
	}
	assert.Zero(t, m.ConsecutiveFails.Load())
	assert.GreaterOrEqual(t, m.P95LatencyMs(), int64(900))
	assert.Equal(t, int64(990), m.LastLatencyMs.Load())
}
