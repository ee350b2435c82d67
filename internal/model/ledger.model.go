package model

import (
	"math"
	"time"
)

const (
	// MaxAmount bounds a single ledger mutation.
	MaxAmount int64 = 1_000_000
	// UnlimitedBalance is reported for principals that are never charged.
	UnlimitedBalance int64 = math.MaxInt64

	DefaultTransactionLimit = 20
	MaxTransactionLimit     = 100
)

type RefType string

const (
	RefTransformation RefType = "transformation"
	RefTranscription  RefType = "transcription"
	RefVideoShort     RefType = "video_short"
	RefPurchase       RefType = "purchase"
	RefRefund         RefType = "refund"
	RefBonus          RefType = "bonus"
)

func (r RefType) Valid() bool {
	switch r {
	case RefTransformation, RefTranscription, RefVideoShort, RefPurchase, RefRefund, RefBonus:
		return true
	}
	return false
}

// Ref identifies what a transaction pays for. (principal, Type, ID) is the
// idempotency key of a transaction.
type Ref struct {
	Type RefType
	ID   string
}

type Balance struct {
	PrincipalID string `json:"principalId"`
	Balance     int64  `json:"balance"`
	IsUnlimited bool   `json:"isUnlimited"`
	// Replayed is set when a mutation matched an existing reference and
	// nothing was written.
	Replayed bool `json:"-"`
}

// BalanceCheck compares a stored balance with the sum of its transactions.
type BalanceCheck struct {
	PrincipalID    string `json:"principalId"`
	Balance        int64  `json:"balance"`
	TransactionSum int64  `json:"transactionSum"`
	Consistent     bool   `json:"consistent"`
}

type Transaction struct {
	ID          string    `json:"id"`
	PrincipalID string    `json:"principalId"`
	Delta       int64     `json:"delta"`
	Reason      string    `json:"reason"`
	RefType     RefType   `json:"refType,omitempty"`
	RefID       string    `json:"refId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Account is the materialized balance row of a principal.
type Account struct {
	PrincipalID string
	Balance     int64
	Unlimited   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ValidateAmount checks 0 < amount <= MaxAmount.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return NewValidationError("amount", "must be positive, got %d", amount)
	}
	if amount > MaxAmount {
		return NewValidationError("amount", "must not exceed %d, got %d", MaxAmount, amount)
	}
	return nil
}

// ClampLimit normalizes a ListTransactions limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultTransactionLimit
	}
	if limit > MaxTransactionLimit {
		return MaxTransactionLimit
	}
	return limit
}
