package model

import (
	"math"
	"strings"
)

type PaymentStatus string

const (
	PaymentApproved PaymentStatus = "approved"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentPending  PaymentStatus = "pending"
	PaymentRejected PaymentStatus = "rejected"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentApproved, PaymentRefunded, PaymentPending, PaymentRejected:
		return true
	}
	return false
}

// currencyExponents maps ISO-4217 codes to their minor unit exponent.
var currencyExponents = map[string]int{
	"BRL": 2,
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"JPY": 0,
}

// CurrencyExponent returns the minor unit exponent of a known currency.
func CurrencyExponent(currency string) (int, bool) {
	exp, ok := currencyExponents[strings.ToUpper(currency)]
	return exp, ok
}

// PaymentEvent is a normalized payment provider webhook event.
type PaymentEvent struct {
	EventID     string            `json:"event_id"`
	Provider    string            `json:"provider"`
	Status      PaymentStatus     `json:"status"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency"`
	PrincipalID string            `json:"principal_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (e PaymentEvent) Validate() error {
	if strings.TrimSpace(e.EventID) == "" {
		return NewValidationError("event_id", "is required")
	}
	if strings.TrimSpace(e.Provider) == "" {
		return NewValidationError("provider", "is required")
	}
	if strings.ContainsRune(e.Provider, ':') {
		return NewValidationError("provider", "must not contain ':'")
	}
	if strings.TrimSpace(e.PrincipalID) == "" {
		return NewValidationError("principal_id", "is required")
	}
	if !e.Status.Valid() {
		return NewValidationError("status", "unknown status %q", e.Status)
	}
	if e.Amount < 0 {
		return NewValidationError("amount", "must not be negative")
	}
	if len(e.Currency) != 3 {
		return NewValidationError("currency", "must be a 3-letter code")
	}
	if _, ok := CurrencyExponent(e.Currency); !ok {
		return NewValidationError("currency", "unsupported currency %q", e.Currency)
	}
	return nil
}

// Ref is the dedup reference of the event: "<provider>:<event_id>".
func (e PaymentEvent) Ref() string {
	return e.Provider + ":" + e.EventID
}

// CreditsForAmount converts an amount in minor units to credits, rounding
// down: amountMinor * creditsPerMajorUnit / 10^exponent(currency).
func CreditsForAmount(amountMinor int64, currency string, creditsPerMajorUnit int64) (int64, error) {
	exp, ok := CurrencyExponent(currency)
	if !ok {
		return 0, NewValidationError("currency", "unsupported currency %q", currency)
	}
	if amountMinor < 0 {
		return 0, NewValidationError("amount", "must not be negative")
	}
	if creditsPerMajorUnit <= 0 {
		return 0, NewValidationError("credits_per_major_unit", "must be positive")
	}
	if amountMinor > math.MaxInt64/creditsPerMajorUnit {
		return 0, NewValidationError("amount", "too large")
	}
	divisor := int64(1)
	for i := 0; i < exp; i++ {
		divisor *= 10
	}
	credits := amountMinor * creditsPerMajorUnit / divisor
	if credits == 0 {
		return 0, NewValidationError("amount", "converts to zero credits")
	}
	return credits, nil
}
