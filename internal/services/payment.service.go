package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/prom"
)

type CreditLedger interface {
	Credit(ctx context.Context, principalID string, amount int64, reason string, ref *model.Ref) (*model.Balance, error)
	Refund(ctx context.Context, principalID string, amount int64, ref model.Ref) (*model.Balance, error)
}

// PaymentService applies payment provider events to the ledger. Events are
// deduplicated on "<provider>:<event_id>".
type PaymentService struct {
	ledger              CreditLedger
	audit               AuditSink
	creditsPerMajorUnit int64
}

func NewPaymentService(ledger CreditLedger, audit AuditSink, creditsPerMajorUnit int64) *PaymentService {
	if audit == nil {
		audit = NopAudit{}
	}
	return &PaymentService{ledger: ledger, audit: audit, creditsPerMajorUnit: creditsPerMajorUnit}
}

// Handle applies ev. Replayed events succeed without a second mutation.
func (s *PaymentService) Handle(ctx context.Context, ev model.PaymentEvent) error {
	if err := ev.Validate(); err != nil {
		prom.WebhookEvent(ev.Provider, string(ev.Status), "invalid")
		return err
	}
	refID := ev.Ref()

	switch ev.Status {
	case model.PaymentPending, model.PaymentRejected:
		prom.WebhookEvent(ev.Provider, string(ev.Status), "ignored")
		s.audit.Record(ctx, "payment."+string(ev.Status), "principal_id", ev.PrincipalID, "ref_id", refID, "amount", ev.Amount, "currency", ev.Currency)
		return nil
	}

	credits, err := model.CreditsForAmount(ev.Amount, ev.Currency, s.creditsPerMajorUnit)
	if err != nil {
		prom.WebhookEvent(ev.Provider, string(ev.Status), "invalid")
		return err
	}

	var balance *model.Balance
	switch ev.Status {
	case model.PaymentApproved:
		balance, err = s.ledger.Credit(ctx, ev.PrincipalID, credits,
			fmt.Sprintf("purchase via %s", ev.Provider),
			&model.Ref{Type: model.RefPurchase, ID: refID})
	case model.PaymentRefunded:
		balance, err = s.ledger.Refund(ctx, ev.PrincipalID, credits, model.Ref{Type: model.RefRefund, ID: refID})
	}
	if err != nil {
		result := "error"
		if errors.Is(err, model.ErrValidation) {
			result = "invalid"
		}
		prom.WebhookEvent(ev.Provider, string(ev.Status), result)
		logger.Error("payment event not applied", "provider", ev.Provider, "ref_id", refID, "principal_id", ev.PrincipalID, "error", err)
		return err
	}

	result := "applied"
	if balance.Replayed {
		result = "replayed"
	}
	prom.WebhookEvent(ev.Provider, string(ev.Status), result)
	s.audit.Record(ctx, "payment."+string(ev.Status), "principal_id", ev.PrincipalID, "ref_id", refID, "credits", credits, "result", result)
	logger.Info("payment event processed", "provider", ev.Provider, "status", string(ev.Status), "ref_id", refID, "principal_id", ev.PrincipalID, "credits", credits, "result", result)
	return nil
}
