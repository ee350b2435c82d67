package gateway

import (
	"context"
	"net/url"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/valyala/fasthttp"
)

// AssetClient downloads media referenced by a job. Assets live on presigned
// URLs, so no API key is sent.
type AssetClient struct {
	*apiClient
}

func NewAssetClient(cfg Config) *AssetClient {
	if cfg.Name == "" {
		cfg.Name = "asset"
	}
	cfg.APIKey = ""
	return &AssetClient{apiClient: newAPIClient(cfg)}
}

func (c *AssetClient) Fetch(ctx context.Context, rawURL string) (*model.Asset, error) {
	const op = "asset download"

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, model.NewValidationError("source_url", "must be an absolute http(s) url")
	}

	resp, err := c.do(ctx, op, func(req *fasthttp.Request) {
		req.SetRequestURI(rawURL)
		req.Header.SetMethod(fasthttp.MethodGet)
	})
	if err != nil {
		return nil, err
	}
	if len(resp.body) == 0 {
		return nil, protocolError(op, "empty body")
	}
	return &model.Asset{Data: resp.body, ContentType: resp.contentType}, nil
}
