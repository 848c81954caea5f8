package quota

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

// Default retry behavior for transient store failures.
const (
	DefaultMaxRetries     = 3
	DefaultRetryBaseDelay = 50 * time.Millisecond
)

// Enforcer applies the quota policy atomically against a Store.
//
// Each call runs one read-decide-write transaction for the caller's user id.
// On rejection nothing is written and the stored record is untouched. On a
// transient store failure the whole transaction is retried with exponential
// backoff up to MaxRetries before the failure is surfaced as EUNAVAILABLE.
type Enforcer struct {
	store  Store
	logger *slog.Logger

	maxRetries uint64
	baseDelay  time.Duration
	now        func() time.Time
}

// EnforcerOption customizes an Enforcer.
type EnforcerOption func(*Enforcer)

// WithRetry overrides the transient-failure retry budget.
func WithRetry(maxRetries uint64, baseDelay time.Duration) EnforcerOption {
	return func(e *Enforcer) {
		e.maxRetries = maxRetries
		e.baseDelay = baseDelay
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) EnforcerOption {
	return func(e *Enforcer) {
		e.now = now
	}
}

// NewEnforcer creates an Enforcer over the given store.
func NewEnforcer(store Store, logger *slog.Logger, opts ...EnforcerOption) *Enforcer {
	e := &Enforcer{
		store:      store,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultRetryBaseDelay,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckAndIncrement consumes one unit of the user's daily quota, returning
// the record as written. Rejections surface as a domain error with code
// ELIMIT and leave the stored record exactly as it was; store failures after
// retries surface as EUNAVAILABLE with no partial state.
func (e *Enforcer) CheckAndIncrement(ctx context.Context, userID string, limit int) (domain.QuotaRecord, error) {
	const op = "quota.check_and_increment"

	var written domain.QuotaRecord

	backoff := retry.WithMaxRetries(e.maxRetries, retry.NewExponential(e.baseDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		txErr := e.store.RunTransaction(ctx, userID, func(tx Tx) error {
			record, err := tx.Get(ctx)
			if err != nil {
				return err
			}

			decision := Decide(e.now(), record, limit)
			if !decision.Allow {
				// Returning an error aborts the transaction; no write occurs.
				return domain.QuotaExceeded(op, limit)
			}

			if err := tx.Set(ctx, decision.Next); err != nil {
				return err
			}
			written = decision.Next
			return nil
		})
		if errors.Is(txErr, ErrTransient) {
			e.logger.Warn("quota transaction failed, retrying",
				"user_id", userID,
				"error", txErr,
			)
			return retry.RetryableError(txErr)
		}
		return txErr
	})

	if err != nil {
		if domain.ErrorCode(err) == domain.ELIMIT {
			e.logger.Info("generation quota exceeded",
				"user_id", userID,
				"limit", limit,
			)
			return domain.QuotaRecord{}, err
		}
		if errors.Is(err, ErrTransient) {
			return domain.QuotaRecord{}, domain.Unavailable(err, op, "Could not record your generation. Please try again.")
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.QuotaRecord{}, err
		}
		return domain.QuotaRecord{}, domain.Internal(err, op, "quota transaction failed")
	}

	return written, nil
}

// Usage returns the user's current consumption against the given limit
// without consuming quota. A stale record (previous day) reports zero used.
func (e *Enforcer) Usage(ctx context.Context, userID string, limit int) (domain.QuotaUsage, error) {
	const op = "quota.usage"

	record, err := readRecord(ctx, e.store, userID)
	if err != nil {
		if errors.Is(err, ErrTransient) {
			return domain.QuotaUsage{}, domain.Unavailable(err, op, "Could not read your usage. Please try again.")
		}
		return domain.QuotaUsage{}, domain.Internal(err, op, "quota read failed")
	}

	today := domain.DateOnly(e.now())
	used := 0
	if record != nil && record.LastGenerationDate == today {
		used = record.DailyGenerationsCount
	}

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return domain.QuotaUsage{
		Used:      used,
		Limit:     limit,
		Remaining: remaining,
		ResetDate: today,
	}, nil
}
