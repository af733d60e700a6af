package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperjump/rfqrank/internal/models"
)

// SaveState stores the conversation state as a JSON document keyed by briefing.
func (s *SQLiteStorage) SaveState(ctx context.Context, state *models.ConversationState) error {
	if state == nil || state.BriefingID == "" {
		return fmt.Errorf("conversation state without briefing: %w", models.ErrInvalidInput)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_states (briefing_id, phase, state, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(briefing_id) DO UPDATE SET phase = excluded.phase, state = excluded.state,
		 updated_at = excluded.updated_at`,
		state.BriefingID, string(state.Phase), string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	return nil
}

// LoadState returns the stored conversation state, or nil when there is none.
func (s *SQLiteStorage) LoadState(ctx context.Context, briefingID string) (*models.ConversationState, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM conversation_states WHERE briefing_id = ?`, briefingID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}

	var state models.ConversationState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation state: %w", err)
	}
	return &state, nil
}

// DeleteState removes the stored conversation state. Missing state is not an error.
func (s *SQLiteStorage) DeleteState(ctx context.Context, briefingID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conversation_states WHERE briefing_id = ?`, briefingID)
	return err
}

// AppendTranscript appends turns to a briefing's chat transcript in one transaction.
func (s *SQLiteStorage) AppendTranscript(ctx context.Context, briefingID string, turns ...models.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chat_turns (briefing_id, role, kind, content, created_at) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, turn := range turns {
		created := turn.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx, briefingID, string(turn.Role), string(turn.Kind), turn.Content, created); err != nil {
			return fmt.Errorf("failed to append chat turn: %w", err)
		}
	}
	return tx.Commit()
}

// LoadTranscript returns the briefing's chat turns in the order they were appended.
func (s *SQLiteStorage) LoadTranscript(ctx context.Context, briefingID string) ([]models.ChatTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, kind, content, created_at FROM chat_turns WHERE briefing_id = ? ORDER BY id`,
		briefingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []models.ChatTurn
	for rows.Next() {
		var turn models.ChatTurn
		var role string
		var kind sql.NullString
		if err := rows.Scan(&role, &kind, &turn.Content, &turn.CreatedAt); err != nil {
			return nil, err
		}
		turn.Role = models.Role(role)
		turn.Kind = models.TurnKind(kind.String)
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
