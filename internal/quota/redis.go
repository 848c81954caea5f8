package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

const recordKeyPrefix = "quota:user:"

// RedisStore implements Store on Redis using optimistic WATCH transactions.
//
// The record is a single JSON document per user. A concurrent write to the
// watched key between read and EXEC fails the transaction with
// redis.TxFailedErr, which surfaces as ErrTransient so the enforcer re-runs
// the whole read-decide-write cycle against fresh state.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Store backed by the given Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// RunTransaction implements Store.
func (s *RedisStore) RunTransaction(ctx context.Context, userID string, fn func(tx Tx) error) error {
	key := recordKeyPrefix + userID

	err := s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
		tx := &redisTx{tx: rtx, key: key}
		if err := fn(tx); err != nil {
			return err
		}
		if tx.pending == nil {
			return nil
		}

		data, err := json.Marshal(tx.pending)
		if err != nil {
			return fmt.Errorf("marshal quota record: %w", err)
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

type redisTx struct {
	tx      *redis.Tx
	key     string
	pending *domain.QuotaRecord
}

func (t *redisTx) Get(ctx context.Context) (*domain.QuotaRecord, error) {
	if t.pending != nil {
		record := *t.pending
		return &record, nil
	}

	data, err := t.tx.Get(ctx, t.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var record domain.QuotaRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal quota record: %w", err)
	}
	return &record, nil
}

func (t *redisTx) Set(_ context.Context, record domain.QuotaRecord) error {
	t.pending = &record
	return nil
}
