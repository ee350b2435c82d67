package gateway

import (
	"context"
	"testing"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestAssetClient_Fetch(t *testing.T) {
	cfg, _ := serve(t, func(ctx *fasthttp.RequestCtx, _ int32) {
		if len(ctx.Request.Header.Peek("Authorization")) > 0 {
			ctx.SetStatusCode(400)
			return
		}
		ctx.SetContentType("audio/webm")
		ctx.SetBodyString("webm-bytes")
	})
	c := NewAssetClient(cfg)

	asset, err := c.Fetch(context.Background(), "https://bucket.test/a.webm?sig=abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("webm-bytes"), asset.Data)
	assert.Equal(t, "audio/webm", asset.ContentType)
}

func TestAssetClient_RejectsBadURL(t *testing.T) {
	c := NewAssetClient(Config{})
	for _, u := range []string{"", "ftp://x/y", "/relative/path", "https://"} {
		_, err := c.Fetch(context.Background(), u)
		assert.ErrorIs(t, err, model.ErrValidation, u)
	}
}

func TestAssetClient_NotFound(t *testing.T) {
	cfg, _ := serve(t, func(ctx *fasthttp.RequestCtx, _ int32) {
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	})
	_, err := NewAssetClient(cfg).Fetch(context.Background(), "http://bucket.test/missing")
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}
