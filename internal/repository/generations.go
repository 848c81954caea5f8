package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// CreateGenerationParams holds the fields for inserting a generation record.
type CreateGenerationParams struct {
	ID             uuid.UUID
	UserID         string
	Kind           string
	Instruction    string
	URLs           []string
	StoragePaths   []string
	ThumbnailPaths []string
	Status         string
}

const createGeneration = `
INSERT INTO generations (id, user_id, kind, instruction, urls, storage_paths, thumbnail_paths, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, user_id, kind, instruction, urls, storage_paths, thumbnail_paths, status, created_at
`

// CreateGeneration inserts a generation record and returns the stored row.
func (q *Queries) CreateGeneration(ctx context.Context, params CreateGenerationParams) (Generation, error) {
	urls, paths, thumbs, err := marshalPathColumns(params.URLs, params.StoragePaths, params.ThumbnailPaths)
	if err != nil {
		return Generation{}, err
	}

	row := q.db.QueryRowContext(ctx, createGeneration,
		params.ID, params.UserID, params.Kind, params.Instruction,
		urls, paths, thumbs, params.Status,
	)
	return scanGeneration(row)
}

const getGeneration = `
SELECT id, user_id, kind, instruction, urls, storage_paths, thumbnail_paths, status, created_at
FROM generations
WHERE id = $1
`

// GetGeneration fetches one generation by id. Returns sql.ErrNoRows when
// absent.
func (q *Queries) GetGeneration(ctx context.Context, id uuid.UUID) (Generation, error) {
	return scanGeneration(q.db.QueryRowContext(ctx, getGeneration, id))
}

const listGenerationsByUser = `
SELECT id, user_id, kind, instruction, urls, storage_paths, thumbnail_paths, status, created_at
FROM generations
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`

// ListGenerationsByUser returns a user's generations, newest first.
func (q *Queries) ListGenerationsByUser(ctx context.Context, userID string, limit int32) ([]Generation, error) {
	rows, err := q.db.QueryContext(ctx, listGenerationsByUser, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var generations []Generation
	for rows.Next() {
		generation, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		generations = append(generations, generation)
	}
	return generations, rows.Err()
}

const updateGenerationThumbnails = `
UPDATE generations
SET thumbnail_paths = $2
WHERE id = $1
`

// UpdateGenerationThumbnails records the thumbnail storage paths for a
// generation after background processing.
func (q *Queries) UpdateGenerationThumbnails(ctx context.Context, id uuid.UUID, thumbnailPaths []string) error {
	thumbs, err := json.Marshal(emptyIfNil(thumbnailPaths))
	if err != nil {
		return fmt.Errorf("marshal thumbnail paths: %w", err)
	}
	result, err := q.db.ExecContext(ctx, updateGenerationThumbnails, id, thumbs)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanGeneration(row scanner) (Generation, error) {
	var g Generation
	var urls, paths, thumbs []byte
	err := row.Scan(&g.ID, &g.UserID, &g.Kind, &g.Instruction, &urls, &paths, &thumbs, &g.Status, &g.CreatedAt)
	if err != nil {
		return Generation{}, err
	}
	if err := json.Unmarshal(urls, &g.URLs); err != nil {
		return Generation{}, fmt.Errorf("unmarshal urls: %w", err)
	}
	if err := json.Unmarshal(paths, &g.StoragePaths); err != nil {
		return Generation{}, fmt.Errorf("unmarshal storage paths: %w", err)
	}
	if err := json.Unmarshal(thumbs, &g.ThumbnailPaths); err != nil {
		return Generation{}, fmt.Errorf("unmarshal thumbnail paths: %w", err)
	}
	return g, nil
}

func marshalPathColumns(urls, paths, thumbs []string) ([]byte, []byte, []byte, error) {
	urlsJSON, err := json.Marshal(emptyIfNil(urls))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal urls: %w", err)
	}
	pathsJSON, err := json.Marshal(emptyIfNil(paths))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal storage paths: %w", err)
	}
	thumbsJSON, err := json.Marshal(emptyIfNil(thumbs))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshal thumbnail paths: %w", err)
	}
	return urlsJSON, pathsJSON, thumbsJSON, nil
}

// emptyIfNil keeps jsonb columns as [] rather than null.
func emptyIfNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
