package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

// PostgresStore implements Store on a user_quotas table.
//
// Per-user serialization comes from a pg_advisory_xact_lock keyed on the user
// id, taken at the start of every transaction. A FOR UPDATE row lock alone is
// not enough: before a user's first row exists there is nothing to lock, and
// concurrent first-day transactions would all read an absent record and all
// write count 1. The advisory lock exists independently of the row and is
// released automatically at commit or rollback. Different users map to
// different lock keys and proceed independently.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a Store backed by the given database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// RunTransaction implements Store.
func (s *PostgresStore) RunTransaction(ctx context.Context, userID string, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyPgError(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, userID,
	); err != nil {
		return classifyPgError(fmt.Errorf("acquire user lock: %w", err))
	}

	ptx := &postgresTx{tx: tx, userID: userID}
	if err := fn(ptx); err != nil {
		// fn errors (including policy rejections) abort the transaction
		// untouched; only store-level failures get reclassified.
		return err
	}

	if err := tx.Commit(); err != nil {
		return classifyPgError(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type postgresTx struct {
	tx     *sql.Tx
	userID string
}

func (t *postgresTx) Get(ctx context.Context) (*domain.QuotaRecord, error) {
	var record domain.QuotaRecord
	err := t.tx.QueryRowContext(ctx,
		`SELECT last_generation_date, daily_generations_count
		 FROM user_quotas
		 WHERE user_id = $1
		 FOR UPDATE`, t.userID,
	).Scan(&record.LastGenerationDate, &record.DailyGenerationsCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifyPgError(fmt.Errorf("select quota record: %w", err))
	}
	return &record, nil
}

func (t *postgresTx) Set(ctx context.Context, record domain.QuotaRecord) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO user_quotas (user_id, last_generation_date, daily_generations_count, updated_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET last_generation_date = EXCLUDED.last_generation_date,
		     daily_generations_count = EXCLUDED.daily_generations_count,
		     updated_at = NOW()`,
		t.userID, record.LastGenerationDate, record.DailyGenerationsCount)
	if err != nil {
		return classifyPgError(fmt.Errorf("upsert quota record: %w", err))
	}
	return nil
}

// classifyPgError wraps retry-safe Postgres failures with ErrTransient.
// Serialization conflicts, deadlocks, and connection-level failures abort
// without partial writes, so the enforcer may retry the whole transaction.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", // serialization_failure
			"40P01",  // deadlock_detected
			"55P03":  // lock_not_available
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" { // connection exceptions
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}
