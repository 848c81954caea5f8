package quota

import (
	"context"
	"errors"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

// ErrTransient marks store failures that are safe to retry: the transaction
// aborted without applying any write. Adapters wrap serialization conflicts,
// optimistic-lock failures, and connection drops with this sentinel.
var ErrTransient = errors.New("quota store: transient failure")

// Tx is the view of one in-flight transaction for a single user's record.
// Reads observe earlier writes in the same transaction.
type Tx interface {
	// Get returns the user's current record, or nil if none exists.
	Get(ctx context.Context) (*domain.QuotaRecord, error)

	// Set stages the record to be written when the transaction commits.
	Set(ctx context.Context, record domain.QuotaRecord) error
}

// Store is a transactional document store for quota records, keyed by user
// id. RunTransaction executes fn with commit-or-abort semantics: if fn
// returns an error the transaction aborts and no write applies. Concurrent
// transactions for the same user id serialize (or conflict and surface
// ErrTransient); transactions for different users never block each other.
//
// All quota state flows through RunTransaction. Nothing else writes records.
type Store interface {
	RunTransaction(ctx context.Context, userID string, fn func(tx Tx) error) error
}

// readRecord fetches a user's record without modifying it, for usage display.
func readRecord(ctx context.Context, store Store, userID string) (*domain.QuotaRecord, error) {
	var record *domain.QuotaRecord
	err := store.RunTransaction(ctx, userID, func(tx Tx) error {
		var err error
		record, err = tx.Get(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
