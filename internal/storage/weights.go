package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LoadWeights returns the saved weight configuration blob for a briefing, or nil.
func (s *SQLiteStorage) LoadWeights(ctx context.Context, briefingID string) ([]byte, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT config FROM weight_configs WHERE briefing_id = ?`, briefingID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load weights: %w", err)
	}
	return []byte(blob), nil
}

// SaveWeights stores the weight configuration blob for a briefing, replacing any previous one.
func (s *SQLiteStorage) SaveWeights(ctx context.Context, briefingID string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weight_configs (briefing_id, config, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(briefing_id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		briefingID, string(blob), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save weights: %w", err)
	}
	return nil
}
