package handlers

import (
	"context"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	xhttp "github.com/Pguillen87/arcanum-ai-sub001/pkg/http"
	"github.com/fasthttp/router"
)

type LedgerService interface {
	GetBalance(ctx context.Context, principalID string) (*model.Balance, error)
	ListTransactions(ctx context.Context, principalID string, limit int) ([]*model.Transaction, error)
}

type LedgerHandler struct {
	svc LedgerService
}

func RegisterLedgerRoutes(g *router.Group, h *LedgerHandler) {
	g.GET("/ledger/{ownerId}/balance", h.GetBalance)
	g.GET("/ledger/{ownerId}/transactions", h.ListTransactions)
}

func NewLedgerHandler(svc LedgerService) *LedgerHandler {
	return &LedgerHandler{svc: svc}
}

type balanceResponse struct {
	Balance     int64 `json:"balance"`
	IsUnlimited bool  `json:"isUnlimited"`
}

type transactionsResponse struct {
	Items []*model.Transaction `json:"items"`
}

func (h *LedgerHandler) GetBalance(ctx *xhttp.RequestCtx) {
	b, err := h.svc.GetBalance(ctx, pathParam(ctx, "ownerId"))
	if err != nil {
		writeServiceError(ctx, err, xhttp.StatusServiceUnavailable)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, balanceResponse{Balance: b.Balance, IsUnlimited: b.IsUnlimited})
}

func (h *LedgerHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	limit, err := queryInt(ctx, "limit", model.DefaultTransactionLimit)
	if err != nil {
		writeServiceError(ctx, err, xhttp.StatusServiceUnavailable)
		return
	}
	items, err := h.svc.ListTransactions(ctx, pathParam(ctx, "ownerId"), limit)
	if err != nil {
		writeServiceError(ctx, err, xhttp.StatusServiceUnavailable)
		return
	}
	if items == nil {
		items = []*model.Transaction{}
	}
	writeJSON(ctx, xhttp.StatusOK, transactionsResponse{Items: items})
}
