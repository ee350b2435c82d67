package handlers

import (
	"context"

	xhttp "github.com/Pguillen87/arcanum-ai-sub001/pkg/http"
	"github.com/fasthttp/router"
)

type HealthService interface {
	Check(ctx context.Context) (map[string]string, error)
}

type HealthHandler struct {
	svc HealthService
}

func RegisterHealthRoutes(g *router.Group, h *HealthHandler) {
	g.GET("/health", h.GetHealth)
}

func NewHealthHandler(svc HealthService) *HealthHandler {
	return &HealthHandler{svc: svc}
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	components, err := h.svc.Check(ctx)
	if err != nil {
		writeJSON(ctx, xhttp.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Components: components})
		return
	}
	writeJSON(ctx, xhttp.StatusOK, healthResponse{Status: "ok", Components: components})
}
