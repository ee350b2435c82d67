package services

import (
	"context"
	"testing"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvedEvent(id string, amount int64) model.PaymentEvent {
	return model.PaymentEvent{
		EventID:     id,
		Provider:    "stripe",
		Status:      model.PaymentApproved,
		Amount:      amount,
		Currency:    "BRL",
		PrincipalID: "user-1",
	}
}

func TestPaymentService_ApprovedIsDeduplicated(t *testing.T) {
	store := setupStore(t)
	ledger := store.ledger(LedgerOptions{})
	audit := &recordingAudit{}
	svc := NewPaymentService(ledger, audit, 10)
	ctx := context.Background()

	// R$ 25,00 at 10 credits per real
	require.NoError(t, svc.Handle(ctx, approvedEvent("evt_1", 2500)))
	require.NoError(t, svc.Handle(ctx, approvedEvent("evt_1", 2500)))

	b, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(250), b.Balance)

	items, err := ledger.ListTransactions(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.RefPurchase, items[0].RefType)
	assert.Equal(t, "stripe:evt_1", items[0].RefID)
	assert.Equal(t, "purchase via stripe", items[0].Reason)
}

func TestPaymentService_Refunded(t *testing.T) {
	store := setupStore(t)
	ledger := store.ledger(LedgerOptions{})
	svc := NewPaymentService(ledger, nil, 10)
	ctx := context.Background()

	require.NoError(t, svc.Handle(ctx, approvedEvent("evt_1", 1000)))

	refund := approvedEvent("evt_2", 400)
	refund.Status = model.PaymentRefunded
	require.NoError(t, svc.Handle(ctx, refund))
	require.NoError(t, svc.Handle(ctx, refund))

	b, err := ledger.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), b.Balance)
}

func TestPaymentService_PendingAndRejectedOnlyAudit(t *testing.T) {
	store := setupStore(t)
	ledger := store.ledger(LedgerOptions{})
	audit := &recordingAudit{}
	svc := NewPaymentService(ledger, audit, 10)
	ctx := context.Background()

	for _, status := range []model.PaymentStatus{model.PaymentPending, model.PaymentRejected} {
		ev := approvedEvent("evt_"+string(status), 1000)
		ev.Status = status
		require.NoError(t, svc.Handle(ctx, ev))
	}

	items, err := ledger.ListTransactions(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, []string{"payment.pending", "payment.rejected"}, audit.Actions())
}

func TestPaymentService_Invalid(t *testing.T) {
	store := setupStore(t)
	svc := NewPaymentService(store.ledger(LedgerOptions{}), nil, 10)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(ev *model.PaymentEvent)
	}{
		{"missing event id", func(ev *model.PaymentEvent) { ev.EventID = "" }},
		{"missing principal", func(ev *model.PaymentEvent) { ev.PrincipalID = "" }},
		{"unknown status", func(ev *model.PaymentEvent) { ev.Status = "chargeback" }},
		{"negative amount", func(ev *model.PaymentEvent) { ev.Amount = -1 }},
		{"unknown currency", func(ev *model.PaymentEvent) { ev.Currency = "XYZ" }},
		{"zero credits", func(ev *model.PaymentEvent) { ev.Amount = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := approvedEvent("evt_1", 1000)
			tt.mutate(&ev)
			assert.ErrorIs(t, svc.Handle(ctx, ev), model.ErrValidation)
		})
	}
}
