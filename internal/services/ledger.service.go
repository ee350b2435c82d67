package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/Pguillen87/arcanum-ai-sub001/internal/repository"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/logger"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/pg"
	"github.com/Pguillen87/arcanum-ai-sub001/pkg/prom"
)

type AccountRepository interface {
	Ensure(ctx context.Context, principalID string) error
	Get(ctx context.Context, principalID string) (*model.Account, error)
	Lock(ctx context.Context, principalID string) (*model.Account, error)
	AdjustBalance(ctx context.Context, principalID string, delta int64) (bool, error)
	SetUnlimited(ctx context.Context, principalID string, unlimited bool) error
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TransactionRepository interface {
	Insert(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	InsertOnce(ctx context.Context, txn *model.Transaction) (*model.Transaction, bool, error)
	FindByRef(ctx context.Context, principalID string, ref model.Ref) (*model.Transaction, error)
	List(ctx context.Context, principalID string, limit int) ([]*model.Transaction, error)
	Sum(ctx context.Context, principalID string) (int64, error)
}

type ReconciliationRepository interface {
	InsertOnce(ctx context.Context, ev *model.ReconciliationEvent) (bool, error)
	Resolve(ctx context.Context, ref model.Ref, reasons []model.ReconciliationReason, now time.Time) (int64, error)
}

type LedgerOptions struct {
	UnlimitedPrincipals []string
	UnlimitedAll        bool
}

// LedgerService owns every balance mutation. A balance row only changes in
// the same database transaction that appends its Transaction.
type LedgerService struct {
	accounts     AccountRepository
	transactions TransactionRepository
	recon        ReconciliationRepository
	audit        AuditSink
	unlimited    map[string]struct{}
	unlimitedIDs []string
	unlimitedAll bool
}

func NewLedgerService(accounts AccountRepository, transactions TransactionRepository, recon ReconciliationRepository, audit AuditSink, opts LedgerOptions) *LedgerService {
	if audit == nil {
		audit = NopAudit{}
	}
	unlimited := make(map[string]struct{}, len(opts.UnlimitedPrincipals))
	var ids []string
	for _, p := range opts.UnlimitedPrincipals {
		if _, dup := unlimited[p]; dup {
			continue
		}
		unlimited[p] = struct{}{}
		ids = append(ids, p)
	}
	return &LedgerService{
		accounts:     accounts,
		transactions: transactions,
		recon:        recon,
		audit:        audit,
		unlimited:    unlimited,
		unlimitedIDs: ids,
		unlimitedAll: opts.UnlimitedAll,
	}
}

func unlimitedBalance(principalID string) *model.Balance {
	return &model.Balance{PrincipalID: principalID, Balance: model.UnlimitedBalance, IsUnlimited: true}
}

func (s *LedgerService) configuredUnlimited(principalID string) bool {
	if s.unlimitedAll {
		return true
	}
	_, ok := s.unlimited[principalID]
	return ok
}

// ConfiguredUnlimited returns the principals exempt from charges by
// configuration. Accounts flagged unlimited in storage are not included.
func (s *LedgerService) ConfiguredUnlimited() (all bool, principals []string) {
	return s.unlimitedAll, append([]string(nil), s.unlimitedIDs...)
}

// SetUnlimited flags or unflags the stored account of principalID. Flagged
// accounts are never debited.
func (s *LedgerService) SetUnlimited(ctx context.Context, principalID string, unlimited bool) (*model.Balance, error) {
	if err := validatePrincipal(principalID); err != nil {
		return nil, err
	}
	err := repository.WithRetry(ctx, func(ctx context.Context) error {
		return s.accounts.SetUnlimited(ctx, principalID, unlimited)
	})
	if err != nil {
		return nil, s.storageErr("set_unlimited", err)
	}
	s.audit.Record(ctx, "ledger.set_unlimited", "principal_id", principalID, "unlimited", unlimited)
	return s.GetBalance(pg.ReadPrimary(ctx), principalID)
}

// GetBalance returns the current balance, creating a zero balance row on
// first use.
func (s *LedgerService) GetBalance(ctx context.Context, principalID string) (*model.Balance, error) {
	if err := validatePrincipal(principalID); err != nil {
		return nil, err
	}
	if s.configuredUnlimited(principalID) {
		return unlimitedBalance(principalID), nil
	}

	var acc *model.Account
	err := repository.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		acc, err = s.accounts.Get(ctx, principalID)
		if errors.Is(err, model.ErrNotFound) {
			if err = s.accounts.Ensure(ctx, principalID); err != nil {
				return err
			}
			acc, err = s.accounts.Get(pg.ReadPrimary(ctx), principalID)
		}
		return err
	})
	if err != nil {
		return nil, s.storageErr("get_balance", err)
	}
	if acc.Unlimited {
		return unlimitedBalance(principalID), nil
	}
	return &model.Balance{PrincipalID: principalID, Balance: acc.Balance}, nil
}

// Debit charges amount for ref. A ref that was already charged is not an
// error: the current balance is returned and nothing is written.
func (s *LedgerService) Debit(ctx context.Context, principalID string, amount int64, ref model.Ref) (*model.Balance, error) {
	if err := validateMutation(principalID, amount); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}
	if s.configuredUnlimited(principalID) {
		prom.LedgerOperation("debit", "unlimited")
		return unlimitedBalance(principalID), nil
	}

	var result *model.Balance
	err := repository.WithRetry(ctx, func(ctx context.Context) error {
		return s.accounts.WithinTransaction(ctx, func(ctx context.Context) error {
			acc, err := s.lockAccount(ctx, principalID)
			if err != nil {
				return err
			}
			if acc.Unlimited {
				result = unlimitedBalance(principalID)
				return nil
			}

			// replay check comes before the balance check
			if _, err := s.transactions.FindByRef(ctx, principalID, ref); err == nil {
				result = &model.Balance{PrincipalID: principalID, Balance: acc.Balance, Replayed: true}
				return nil
			} else if !errors.Is(err, model.ErrNotFound) {
				return err
			}

			if acc.Balance < amount {
				return model.ErrInsufficientBalance
			}

			_, created, err := s.transactions.InsertOnce(ctx, &model.Transaction{
				PrincipalID: principalID,
				Delta:       -amount,
				Reason:      fmt.Sprintf("%s %s", ref.Type, ref.ID),
				RefType:     ref.Type,
				RefID:       ref.ID,
			})
			if err != nil {
				return err
			}
			if !created {
				result = &model.Balance{PrincipalID: principalID, Balance: acc.Balance, Replayed: true}
				return nil
			}

			applied, err := s.accounts.AdjustBalance(ctx, principalID, -amount)
			if err != nil {
				return err
			}
			if !applied {
				return model.ErrInsufficientBalance
			}
			result = &model.Balance{PrincipalID: principalID, Balance: acc.Balance - amount}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, model.ErrInsufficientBalance) {
			prom.LedgerOperation("debit", "insufficient_balance")
			return nil, err
		}
		return nil, s.storageErr("debit", err)
	}

	s.recordMutation(ctx, "ledger.debit", principalID, -amount, &ref, result)
	return result, nil
}

// Credit adds amount to the balance. With a ref the credit is applied once.
func (s *LedgerService) Credit(ctx context.Context, principalID string, amount int64, reason string, ref *model.Ref) (*model.Balance, error) {
	if err := validateMutation(principalID, amount); err != nil {
		return nil, err
	}
	if ref != nil {
		if err := validateRef(*ref); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(reason) == "" {
		reason = "credit"
	}

	var (
		result       *model.Balance
		rowUnlimited bool
	)
	err := repository.WithRetry(ctx, func(ctx context.Context) error {
		return s.accounts.WithinTransaction(ctx, func(ctx context.Context) error {
			acc, err := s.lockAccount(ctx, principalID)
			if err != nil {
				return err
			}
			rowUnlimited = acc.Unlimited
			if acc.Balance > math.MaxInt64-amount {
				return model.NewValidationError("amount", "balance would overflow")
			}

			txn := &model.Transaction{PrincipalID: principalID, Delta: amount, Reason: reason}
			if ref != nil {
				txn.RefType, txn.RefID = ref.Type, ref.ID
				_, created, err := s.transactions.InsertOnce(ctx, txn)
				if err != nil {
					return err
				}
				if !created {
					result = &model.Balance{PrincipalID: principalID, Balance: acc.Balance, Replayed: true}
					return nil
				}
			} else if _, err := s.transactions.Insert(ctx, txn); err != nil {
				return err
			}

			if _, err := s.accounts.AdjustBalance(ctx, principalID, amount); err != nil {
				return err
			}
			result = &model.Balance{PrincipalID: principalID, Balance: acc.Balance + amount}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			return nil, err
		}
		return nil, s.storageErr("credit", err)
	}

	s.recordMutation(ctx, "ledger.credit", principalID, amount, ref, result)
	return s.presentBalance(principalID, rowUnlimited, result), nil
}

// Refund takes back up to amount for ref. When the balance is lower than
// amount the refund is clamped to the balance and a refund_clamped
// reconciliation event records the difference.
func (s *LedgerService) Refund(ctx context.Context, principalID string, amount int64, ref model.Ref) (*model.Balance, error) {
	if err := validateMutation(principalID, amount); err != nil {
		return nil, err
	}
	if err := validateRef(ref); err != nil {
		return nil, err
	}

	var (
		result       *model.Balance
		clamped      bool
		rowUnlimited bool
	)
	err := repository.WithRetry(ctx, func(ctx context.Context) error {
		clamped = false
		return s.accounts.WithinTransaction(ctx, func(ctx context.Context) error {
			acc, err := s.lockAccount(ctx, principalID)
			if err != nil {
				return err
			}
			rowUnlimited = acc.Unlimited
			if _, err := s.transactions.FindByRef(ctx, principalID, ref); err == nil {
				result = &model.Balance{PrincipalID: principalID, Balance: acc.Balance, Replayed: true}
				return nil
			} else if !errors.Is(err, model.ErrNotFound) {
				return err
			}

			delta := amount
			if acc.Balance < amount {
				delta = max(acc.Balance, 0)
				clamped = true
			}

			_, created, err := s.transactions.InsertOnce(ctx, &model.Transaction{
				PrincipalID: principalID,
				Delta:       -delta,
				Reason:      fmt.Sprintf("refund %s", ref.ID),
				RefType:     ref.Type,
				RefID:       ref.ID,
			})
			if err != nil {
				return err
			}
			if !created {
				result = &model.Balance{PrincipalID: principalID, Balance: acc.Balance, Replayed: true}
				clamped = false
				return nil
			}

			if delta > 0 {
				applied, err := s.accounts.AdjustBalance(ctx, principalID, -delta)
				if err != nil {
					return err
				}
				if !applied {
					return fmt.Errorf("refund of %d not applied to locked balance %d", delta, acc.Balance)
				}
			}

			if clamped {
				if _, err := s.recon.InsertOnce(ctx, &model.ReconciliationEvent{
					PrincipalID: principalID,
					RefType:     ref.Type,
					RefID:       ref.ID,
					Amount:      amount - delta,
					Reason:      model.ReasonRefundClamped,
					Detail:      fmt.Sprintf("refund of %d clamped to available balance %d", amount, delta),
				}); err != nil {
					return err
				}
			}
			result = &model.Balance{PrincipalID: principalID, Balance: acc.Balance - delta}
			return nil
		})
	})
	if err != nil {
		return nil, s.storageErr("refund", err)
	}

	if clamped {
		prom.ReconciliationEvent(string(model.ReasonRefundClamped))
		logger.Warn("refund clamped to available balance", "principal_id", principalID, "ref_id", ref.ID, "requested", amount, "balance", result.Balance)
	}
	s.recordMutation(ctx, "ledger.refund", principalID, -amount, &ref, result)
	return s.presentBalance(principalID, rowUnlimited, result), nil
}

// ListTransactions returns the newest transactions first. The limit is
// clamped to 1..100.
func (s *LedgerService) ListTransactions(ctx context.Context, principalID string, limit int) ([]*model.Transaction, error) {
	if err := validatePrincipal(principalID); err != nil {
		return nil, err
	}
	var items []*model.Transaction
	err := repository.WithRetry(ctx, func(ctx context.Context) error {
		var err error
		items, err = s.transactions.List(ctx, principalID, model.ClampLimit(limit))
		return err
	})
	if err != nil {
		return nil, s.storageErr("list_transactions", err)
	}
	if items == nil {
		items = []*model.Transaction{}
	}
	return items, nil
}

// VerifyBalance checks that the stored balance equals the sum of the
// principal's transactions. Both are read under the account lock.
func (s *LedgerService) VerifyBalance(ctx context.Context, principalID string) (*model.BalanceCheck, error) {
	if err := validatePrincipal(principalID); err != nil {
		return nil, err
	}
	var check *model.BalanceCheck
	err := repository.WithRetry(ctx, func(ctx context.Context) error {
		return s.accounts.WithinTransaction(ctx, func(ctx context.Context) error {
			acc, err := s.lockAccount(ctx, principalID)
			if err != nil {
				return err
			}
			sum, err := s.transactions.Sum(ctx, principalID)
			if err != nil {
				return err
			}
			check = &model.BalanceCheck{
				PrincipalID:    principalID,
				Balance:        acc.Balance,
				TransactionSum: sum,
				Consistent:     acc.Balance == sum,
			}
			return nil
		})
	})
	if err != nil {
		return nil, s.storageErr("verify_balance", err)
	}
	if !check.Consistent {
		logger.Error("balance does not match transactions", "principal_id", principalID, "balance", check.Balance, "sum", check.TransactionSum)
	}
	return check, nil
}

func (s *LedgerService) lockAccount(ctx context.Context, principalID string) (*model.Account, error) {
	if err := s.accounts.Ensure(ctx, principalID); err != nil {
		return nil, err
	}
	return s.accounts.Lock(ctx, principalID)
}

func (s *LedgerService) presentBalance(principalID string, rowUnlimited bool, b *model.Balance) *model.Balance {
	if rowUnlimited || s.configuredUnlimited(principalID) {
		u := unlimitedBalance(principalID)
		u.Replayed = b.Replayed
		return u
	}
	return b
}

func (s *LedgerService) recordMutation(ctx context.Context, action, principalID string, delta int64, ref *model.Ref, b *model.Balance) {
	result := "applied"
	if b.Replayed {
		result = "replayed"
	}
	prom.LedgerOperation(strings.TrimPrefix(action, "ledger."), result)

	fields := []any{"principal_id", principalID, "delta", delta, "result", result}
	if ref != nil {
		fields = append(fields, "ref_type", string(ref.Type), "ref_id", ref.ID)
	}
	s.audit.Record(ctx, action, fields...)
}

func (s *LedgerService) storageErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	prom.LedgerOperation(op, "storage_error")
	logger.Error("ledger storage failure", "op", op, "error", err)
	return fmt.Errorf("%w: ledger %s: %v", model.ErrStorageUnavailable, op, err)
}

func validatePrincipal(principalID string) error {
	if strings.TrimSpace(principalID) == "" {
		return model.NewValidationError("principal_id", "is required")
	}
	if len(principalID) > 128 {
		return model.NewValidationError("principal_id", "must not exceed 128 characters")
	}
	return nil
}

func validateMutation(principalID string, amount int64) error {
	if err := validatePrincipal(principalID); err != nil {
		return err
	}
	return model.ValidateAmount(amount)
}

func validateRef(ref model.Ref) error {
	if !ref.Type.Valid() {
		return model.NewValidationError("ref_type", "unknown ref type %q", ref.Type)
	}
	if strings.TrimSpace(ref.ID) == "" {
		return model.NewValidationError("ref_id", "is required")
	}
	if len(ref.ID) > 255 {
		return model.NewValidationError("ref_id", "must not exceed 255 characters")
	}
	return nil
}
