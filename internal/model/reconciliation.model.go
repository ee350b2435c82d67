package model

import "time"

type ReconciliationReason string

const (
	ReasonInsufficientBalance ReconciliationReason = "insufficient_balance"
	ReasonDebitFailed         ReconciliationReason = "debit_failed"
	ReasonRefundClamped       ReconciliationReason = "refund_clamped"
	ReasonStaleJob            ReconciliationReason = "stale_job"
)

// ReconciliationEvent records money or work that needs follow-up.
// (RefType, RefID, Reason) is unique.
type ReconciliationEvent struct {
	ID          string               `json:"id"`
	PrincipalID string               `json:"principalId"`
	RefType     RefType              `json:"refType"`
	RefID       string               `json:"refId"`
	Amount      int64                `json:"amount"`
	Reason      ReconciliationReason `json:"reason"`
	Detail      string               `json:"detail,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	ResolvedAt  *time.Time           `json:"resolvedAt,omitempty"`
}

// ReconcileReport summarizes one reconciler sweep.
type ReconcileReport struct {
	StaleFailed  int `json:"staleFailed"`
	Redispatched int `json:"redispatched"`
	Rebilled     int `json:"rebilled"`
	Errors       int `json:"errors"`
}
