package handlers

import (
	"fmt"
	"testing"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	xhttp "github.com/Pguillen87/arcanum-ai-sub001/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestLedgerHandler_GetBalance(t *testing.T) {
	svc := new(MockLedgerService)
	h := NewLedgerHandler(svc)
	svc.On("GetBalance", mock.Anything, "user-1").
		Return(&model.Balance{PrincipalID: "user-1", Balance: 42}, nil)

	ctx := setupTestContext("GET", "/api/v1/ledger/user-1/balance", nil)
	ctx.SetUserValue("ownerId", "user-1")
	h.GetBalance(ctx)

	assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
	assert.JSONEq(t, `{"balance":42,"isUnlimited":false}`, string(ctx.Response.Body()))
}

func TestLedgerHandler_GetBalance_StorageDown(t *testing.T) {
	svc := new(MockLedgerService)
	h := NewLedgerHandler(svc)
	svc.On("GetBalance", mock.Anything, "user-1").
		Return(nil, fmt.Errorf("get balance: %w", model.ErrStorageUnavailable))

	ctx := setupTestContext("GET", "/api/v1/ledger/user-1/balance", nil)
	ctx.SetUserValue("ownerId", "user-1")
	h.GetBalance(ctx)

	assert.Equal(t, xhttp.StatusServiceUnavailable, ctx.Response.StatusCode())
}

func TestLedgerHandler_ListTransactions(t *testing.T) {
	t.Run("passes limit", func(t *testing.T) {
		svc := new(MockLedgerService)
		h := NewLedgerHandler(svc)
		svc.On("ListTransactions", mock.Anything, "user-1", 5).Return([]*model.Transaction{
			{ID: "tx-1", PrincipalID: "user-1", Delta: -10, Reason: "transformation", CreatedAt: time.Now()},
		}, nil)

		ctx := setupTestContext("GET", "/api/v1/ledger/user-1/transactions?limit=5", nil)
		ctx.SetUserValue("ownerId", "user-1")
		h.ListTransactions(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		items := decodeBody(t, ctx)["items"].([]any)
		assert.Len(t, items, 1)
		svc.AssertExpectations(t)
	})

	t.Run("default limit and empty list", func(t *testing.T) {
		svc := new(MockLedgerService)
		h := NewLedgerHandler(svc)
		svc.On("ListTransactions", mock.Anything, "user-1", model.DefaultTransactionLimit).Return(nil, nil)

		ctx := setupTestContext("GET", "/api/v1/ledger/user-1/transactions", nil)
		ctx.SetUserValue("ownerId", "user-1")
		h.ListTransactions(ctx)

		assert.JSONEq(t, `{"items":[]}`, string(ctx.Response.Body()))
	})

	t.Run("bad limit", func(t *testing.T) {
		h := NewLedgerHandler(new(MockLedgerService))
		ctx := setupTestContext("GET", "/api/v1/ledger/user-1/transactions?limit=ten", nil)
		ctx.SetUserValue("ownerId", "user-1")
		h.ListTransactions(ctx)

		assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Equal(t, "limit", decodeBody(t, ctx)["field"])
	})
}
