package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	xhttp "github.com/Pguillen87/arcanum-ai-sub001/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const approvedEvent = `{"event_id":"evt-1","provider":"stripe","status":"approved","amount":1990,"currency":"BRL","principal_id":"user-1"}`

func TestWebhookHandler_Payments(t *testing.T) {
	t.Run("applied", func(t *testing.T) {
		svc := new(MockPaymentService)
		h := NewWebhookHandler(svc)
		svc.On("Handle", mock.Anything, model.PaymentEvent{
			EventID: "evt-1", Provider: "stripe", Status: model.PaymentApproved,
			Amount: 1990, Currency: "BRL", PrincipalID: "user-1",
		}).Return(nil)

		ctx := setupTestContext("POST", "/api/v1/webhooks/payments", []byte(approvedEvent))
		h.Payments(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		assert.JSONEq(t, `{"ok":true}`, string(ctx.Response.Body()))
		svc.AssertExpectations(t)
	})

	t.Run("options", func(t *testing.T) {
		h := NewWebhookHandler(new(MockPaymentService))
		ctx := setupTestContext("OPTIONS", "/api/v1/webhooks/payments", nil)
		h.Payments(ctx)
		assert.Equal(t, xhttp.StatusNoContent, ctx.Response.StatusCode())
	})

	t.Run("wrong method", func(t *testing.T) {
		h := NewWebhookHandler(new(MockPaymentService))
		ctx := setupTestContext("GET", "/api/v1/webhooks/payments", nil)
		h.Payments(ctx)
		assert.Equal(t, xhttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
		assert.Equal(t, "POST, OPTIONS", string(ctx.Response.Header.Peek("Allow")))
	})

	t.Run("malformed", func(t *testing.T) {
		h := NewWebhookHandler(new(MockPaymentService))
		ctx := setupTestContext("POST", "/api/v1/webhooks/payments", []byte(`not json`))
		h.Payments(ctx)
		assert.Equal(t, xhttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", model.NewValidationError("currency", "unsupported currency %q", "XYZ"), xhttp.StatusBadRequest},
		{"storage", fmt.Errorf("credit: %w", model.ErrStorageUnavailable), xhttp.StatusInternalServerError},
		{"unexpected", errors.New("boom"), xhttp.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockPaymentService)
			h := NewWebhookHandler(svc)
			svc.On("Handle", mock.Anything, mock.Anything).Return(tc.err)

			ctx := setupTestContext("POST", "/api/v1/webhooks/payments", []byte(approvedEvent))
			h.Payments(ctx)
			assert.Equal(t, tc.status, ctx.Response.StatusCode())
		})
	}
}
