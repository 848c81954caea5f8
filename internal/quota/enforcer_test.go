package quota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var day1 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestCheckAndIncrement_NewUserBootstrap(t *testing.T) {
	store := NewMemoryStore()
	enforcer := NewEnforcer(store, testLogger(), WithClock(fixedClock(day1)))

	record, err := enforcer.CheckAndIncrement(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, record.DailyGenerationsCount)
	assert.Equal(t, "2024-01-01", record.LastGenerationDate)

	stored, err := readRecord(context.Background(), store, "user-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, record, *stored)
}

func TestCheckAndIncrement_SequentialAccounting(t *testing.T) {
	store := NewMemoryStore()
	enforcer := NewEnforcer(store, testLogger(), WithClock(fixedClock(day1)))
	ctx := context.Background()

	// 10 sequential calls against limit 10 all succeed with exact counts.
	for i := 1; i <= 10; i++ {
		record, err := enforcer.CheckAndIncrement(ctx, "user-1", 10)
		require.NoError(t, err, "call %d should be allowed", i)
		assert.Equal(t, i, record.DailyGenerationsCount)
	}

	// The 11th is rejected and the error names the limit.
	_, err := enforcer.CheckAndIncrement(ctx, "user-1", 10)
	require.Error(t, err)
	assert.Equal(t, domain.ELIMIT, domain.ErrorCode(err))
	assert.Contains(t, domain.ErrorMessage(err), "10")

	stored, err := readRecord(ctx, store, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 10, stored.DailyGenerationsCount)
}

func TestCheckAndIncrement_ElevatedLimit(t *testing.T) {
	store := NewMemoryStore()
	enforcer := NewEnforcer(store, testLogger(), WithClock(fixedClock(day1)))
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		_, err := enforcer.CheckAndIncrement(ctx, "elevated-user", 100)
		require.NoError(t, err, "call %d should be allowed", i)
	}
	_, err := enforcer.CheckAndIncrement(ctx, "elevated-user", 100)
	require.Error(t, err)
	assert.Equal(t, domain.ELIMIT, domain.ErrorCode(err))
	assert.Contains(t, domain.ErrorMessage(err), "100")

	// A default-limit user with the same call pattern caps at 10.
	for i := 1; i <= 10; i++ {
		_, err := enforcer.CheckAndIncrement(ctx, "plain-user", 10)
		require.NoError(t, err)
	}
	_, err = enforcer.CheckAndIncrement(ctx, "plain-user", 10)
	assert.Equal(t, domain.ELIMIT, domain.ErrorCode(err))
}

func TestCheckAndIncrement_DayRollover(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// Fill the window on day one.
	enforcer := NewEnforcer(store, testLogger(), WithClock(fixedClock(day1)))
	for i := 0; i < 10; i++ {
		_, err := enforcer.CheckAndIncrement(ctx, "user-1", 10)
		require.NoError(t, err)
	}
	_, err := enforcer.CheckAndIncrement(ctx, "user-1", 10)
	require.Error(t, err)

	// The next day the first call opens a fresh window with count 1.
	day2 := time.Date(2024, 1, 2, 0, 0, 1, 0, time.UTC)
	enforcer = NewEnforcer(store, testLogger(), WithClock(fixedClock(day2)))
	record, err := enforcer.CheckAndIncrement(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, record.DailyGenerationsCount)
	assert.Equal(t, "2024-01-02", record.LastGenerationDate)
}

func TestCheckAndIncrement_RejectionDoesNotMutate(t *testing.T) {
	store := NewMemoryStore()
	enforcer := NewEnforcer(store, testLogger(), WithClock(fixedClock(day1)))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := enforcer.CheckAndIncrement(ctx, "user-1", 3)
		require.NoError(t, err)
	}

	before, err := readRecord(ctx, store, "user-1")
	require.NoError(t, err)

	_, err = enforcer.CheckAndIncrement(ctx, "user-1", 3)
	require.Error(t, err)

	after, err := readRecord(ctx, store, "user-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCheckAndIncrement_ConcurrentCallsNeverOverAllow(t *testing.T) {
	store := NewMemoryStore()
	enforcer := NewEnforcer(store, testLogger(), WithClock(fixedClock(day1)))

	const (
		callers = 20
		limit   = 10
	)

	var (
		allowed int64
		denied  int64
		wg      sync.WaitGroup
	)

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := enforcer.CheckAndIncrement(context.Background(), "user-1", limit)
			switch {
			case err == nil:
				atomic.AddInt64(&allowed, 1)
			case domain.ErrorCode(err) == domain.ELIMIT:
				atomic.AddInt64(&denied, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), allowed)
	assert.Equal(t, int64(callers-limit), denied)

	stored, err := readRecord(context.Background(), store, "user-1")
	require.NoError(t, err)
	assert.Equal(t, limit, stored.DailyGenerationsCount)
}

func TestCheckAndIncrement_DifferentUsersDoNotInterfere(t *testing.T) {
	store := NewMemoryStore()
	enforcer := NewEnforcer(store, testLogger(), WithClock(fixedClock(day1)))

	const users = 8

	var wg sync.WaitGroup
	wg.Add(users)
	for i := 0; i < users; i++ {
		userID := fmt.Sprintf("user-%d", i)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_, err := enforcer.CheckAndIncrement(context.Background(), userID, 10)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < users; i++ {
		stored, err := readRecord(context.Background(), store, fmt.Sprintf("user-%d", i))
		require.NoError(t, err)
		assert.Equal(t, 5, stored.DailyGenerationsCount)
	}
}

// flakyStore fails the first n transactions with a transient error.
type flakyStore struct {
	inner    Store
	failures int32
}

func (s *flakyStore) RunTransaction(ctx context.Context, userID string, fn func(tx Tx) error) error {
	if atomic.AddInt32(&s.failures, -1) >= 0 {
		return fmt.Errorf("%w: connection reset", ErrTransient)
	}
	return s.inner.RunTransaction(ctx, userID, fn)
}

func TestCheckAndIncrement_RetriesTransientFailures(t *testing.T) {
	store := &flakyStore{inner: NewMemoryStore(), failures: 2}
	enforcer := NewEnforcer(store, testLogger(),
		WithClock(fixedClock(day1)),
		WithRetry(3, time.Millisecond),
	)

	record, err := enforcer.CheckAndIncrement(context.Background(), "user-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, record.DailyGenerationsCount)
}

func TestCheckAndIncrement_SurfacesUnavailableAfterRetryBudget(t *testing.T) {
	store := &flakyStore{inner: NewMemoryStore(), failures: 100}
	enforcer := NewEnforcer(store, testLogger(),
		WithClock(fixedClock(day1)),
		WithRetry(2, time.Millisecond),
	)

	_, err := enforcer.CheckAndIncrement(context.Background(), "user-1", 10)
	require.Error(t, err)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))

	// Nothing was written.
	stored, err := readRecord(context.Background(), store.inner, "user-1")
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestCheckAndIncrement_RejectionIsNotRetried(t *testing.T) {
	var transactions int32
	store := NewMemoryStore()
	counting := storeFunc(func(ctx context.Context, userID string, fn func(tx Tx) error) error {
		atomic.AddInt32(&transactions, 1)
		return store.RunTransaction(ctx, userID, fn)
	})

	enforcer := NewEnforcer(counting, testLogger(), WithClock(fixedClock(day1)), WithRetry(5, time.Millisecond))
	ctx := context.Background()

	_, err := enforcer.CheckAndIncrement(ctx, "user-1", 1)
	require.NoError(t, err)

	atomic.StoreInt32(&transactions, 0)
	_, err = enforcer.CheckAndIncrement(ctx, "user-1", 1)
	require.Error(t, err)
	assert.Equal(t, domain.ELIMIT, domain.ErrorCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&transactions), "a policy rejection must not be retried")
}

type storeFunc func(ctx context.Context, userID string, fn func(tx Tx) error) error

func (f storeFunc) RunTransaction(ctx context.Context, userID string, fn func(tx Tx) error) error {
	return f(ctx, userID, fn)
}

func TestCheckAndIncrement_NonTransientFailureIsInternal(t *testing.T) {
	broken := storeFunc(func(ctx context.Context, userID string, fn func(tx Tx) error) error {
		return errors.New("schema mismatch")
	})
	enforcer := NewEnforcer(broken, testLogger(), WithClock(fixedClock(day1)))

	_, err := enforcer.CheckAndIncrement(context.Background(), "user-1", 10)
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func TestUsage(t *testing.T) {
	store := NewMemoryStore()
	enforcer := NewEnforcer(store, testLogger(), WithClock(fixedClock(day1)))
	ctx := context.Background()

	usage, err := enforcer.Usage(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Equal(t, domain.QuotaUsage{Used: 0, Limit: 10, Remaining: 10, ResetDate: "2024-01-01"}, usage)

	for i := 0; i < 4; i++ {
		_, err := enforcer.CheckAndIncrement(ctx, "user-1", 10)
		require.NoError(t, err)
	}

	usage, err = enforcer.Usage(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 4, usage.Used)
	assert.Equal(t, 6, usage.Remaining)

	// A stale record from yesterday reads as zero used today.
	day2 := time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC)
	enforcer = NewEnforcer(store, testLogger(), WithClock(fixedClock(day2)))
	usage, err = enforcer.Usage(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.Used)
	assert.Equal(t, 10, usage.Remaining)
	assert.Equal(t, "2024-01-02", usage.ResetDate)
}
