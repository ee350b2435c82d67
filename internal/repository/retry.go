package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Pguillen87/arcanum-ai-sub001/internal/model"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"
)

const (
	maxStorageRetries = 3
	storageRetryDelay = 2 * time.Millisecond
)

// WithRetry runs fn and retries transient storage failures with exponential
// backoff: 2ms, 4ms, 8ms. Business and lookup outcomes are returned at once.
func WithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(maxStorageRetries, retry.NewExponential(storageRetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil || isPermanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
}

func isPermanent(err error) bool {
	return errors.Is(err, model.ErrValidation) ||
		errors.Is(err, model.ErrInsufficientBalance) ||
		errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrIllegalTransition) ||
		errors.Is(err, model.ErrJobNotQueued) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		isUniqueViolation(err)
}

// isUniqueViolation matches gorm's translated error and the raw postgres and
// sqlite messages.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
