package corrections

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/statement-ledger/pkg/db"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db db.Querier
}

// NewPostgresStore creates a new correction store
func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{db: q}
}

// Record inserts a correction row when the override is learnable.
func (s *PostgresStore) Record(ctx context.Context, note, rawDescription, suggested, chosen string) (bool, error) {
	if !ShouldRecord(note, suggested, chosen) {
		return false, nil
	}

	query := `
		INSERT INTO ai_corrections (id, note, description, ai_category, user_category)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.db.Exec(ctx, query, uuid.New(), strings.TrimSpace(note), rawDescription, suggested, chosen)
	if err != nil {
		return false, fmt.Errorf("failed to record correction: %w", err)
	}
	return true, nil
}

// Recent returns the newest corrections first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Correction, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `
		SELECT id, note, description, ai_category, user_category, created_at
		FROM ai_corrections
		ORDER BY created_at DESC, id DESC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer rows.Close()

	var out []Correction
	for rows.Next() {
		var c Correction
		if err := rows.Scan(&c.ID, &c.Note, &c.Description, &c.AICategory, &c.UserCategory, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
