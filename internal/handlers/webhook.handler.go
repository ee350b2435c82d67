package handlers

import (
	"context"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	xhttp "github.com/Pguillen87/arcanum-ai-sub001/pkg/http"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/fasthttp/router"
)

type PaymentService interface {
	Handle(ctx context.Context, ev model.PaymentEvent) error
}

// WebhookHandler receives payment provider callbacks. Providers retry on any
// non-2xx, so only storage failures answer 5xx.
type WebhookHandler struct {
	svc PaymentService
}

func RegisterWebhookRoutes(g *router.Group, h *WebhookHandler) {
	g.ANY("/webhooks/payments", h.Payments)
}

func NewWebhookHandler(svc PaymentService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

func (h *WebhookHandler) Payments(ctx *xhttp.RequestCtx) {
	switch {
	case ctx.IsOptions():
		ctx.SetStatusCode(xhttp.StatusNoContent)
		return
	case !ctx.IsPost():
		ctx.Response.Header.Set("Allow", "POST, OPTIONS")
		writeError(ctx, xhttp.StatusMethodNotAllowed, "method_not_allowed", xhttp.StatusText(xhttp.StatusMethodNotAllowed))
		return
	}

	var ev model.PaymentEvent
	if err := readJSON(ctx, &ev); err != nil {
		logger.Warn("malformed payment webhook", "error", err, "bytes", len(ctx.PostBody()))
		writeError(ctx, xhttp.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if err := h.svc.Handle(ctx, ev); err != nil {
		writeServiceError(ctx, err, xhttp.StatusInternalServerError)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, map[string]bool{"ok": true})
}
