package quota

import (
	"context"
	"sync"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

// MemoryStore is an in-process Store used in development and tests.
//
// Each user id has its own lock, so transactions for the same user serialize
// while different users proceed independently. Writes are staged in the
// transaction and applied only when fn succeeds.
type MemoryStore struct {
	mu      sync.Mutex // Guards the maps below, not the records themselves
	locks   map[string]*sync.Mutex
	records map[string]domain.QuotaRecord
}

// NewMemoryStore creates an empty in-memory quota store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		locks:   make(map[string]*sync.Mutex),
		records: make(map[string]domain.QuotaRecord),
	}
}

// RunTransaction implements Store.
func (s *MemoryStore) RunTransaction(ctx context.Context, userID string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	tx := &memoryTx{store: s, userID: userID}
	if err := fn(tx); err != nil {
		return err
	}

	if tx.pending != nil {
		s.mu.Lock()
		s.records[userID] = *tx.pending
		s.mu.Unlock()
	}
	return nil
}

func (s *MemoryStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

type memoryTx struct {
	store   *MemoryStore
	userID  string
	pending *domain.QuotaRecord
}

func (tx *memoryTx) Get(ctx context.Context) (*domain.QuotaRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx.pending != nil {
		record := *tx.pending
		return &record, nil
	}

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	record, ok := tx.store.records[tx.userID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (tx *memoryTx) Set(ctx context.Context, record domain.QuotaRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.pending = &record
	return nil
}
