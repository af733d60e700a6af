package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/rfqrank/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; conversation turns for different briefings run concurrently.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS quotes (
		id TEXT PRIMARY KEY,
		briefing_id TEXT NOT NULL,
		supplier_name TEXT,
		total_price REAL,
		unit_price REAL,
		quantity REAL,
		lead_time_days REAL,
		warranty_months REAL,
		shipping_cost REAL,
		currency TEXT NOT NULL DEFAULT 'USD',
		payment_terms TEXT,
		warranty_period TEXT,
		notes TEXT,
		analysis TEXT,
		source TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_quotes_briefing ON quotes(briefing_id, created_at);

	CREATE TABLE IF NOT EXISTS weight_configs (
		briefing_id TEXT PRIMARY KEY,
		config TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversation_states (
		briefing_id TEXT PRIMARY KEY,
		phase TEXT NOT NULL,
		state TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS chat_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		briefing_id TEXT NOT NULL,
		role TEXT NOT NULL,
		kind TEXT,
		content TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_chat_turns_briefing ON chat_turns(briefing_id, id);

	CREATE TABLE IF NOT EXISTS suppliers (
		key TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		description TEXT,
		categories TEXT,
		location TEXT,
		website TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

const quoteColumns = `id, briefing_id, supplier_name, total_price, unit_price, quantity,
	lead_time_days, warranty_months, shipping_cost, currency, payment_terms,
	warranty_period, notes, analysis, source, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuote(row rowScanner) (*models.Quote, error) {
	var q models.Quote
	var paymentTerms, warrantyPeriod, notes, analysisJSON, source sql.NullString

	err := row.Scan(&q.ID, &q.BriefingID, &q.SupplierName, &q.TotalPrice, &q.UnitPrice, &q.Quantity,
		&q.LeadTimeDays, &q.WarrantyMonths, &q.ShippingCost, &q.Currency, &paymentTerms,
		&warrantyPeriod, &notes, &analysisJSON, &source, &q.CreatedAt)
	if err != nil {
		return nil, err
	}

	q.PaymentTerms = paymentTerms.String
	q.WarrantyPeriod = warrantyPeriod.String
	q.Notes = notes.String
	q.Source = models.QuoteSource(source.String)
	if analysisJSON.Valid && analysisJSON.String != "" && analysisJSON.String != "null" {
		if err := json.Unmarshal([]byte(analysisJSON.String), &q.Analysis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis: %w", err)
		}
	}
	return &q, nil
}

func prepareQuote(q *models.Quote) (string, error) {
	if q.Currency == "" {
		q.Currency = models.DefaultCurrency
	}
	if q.Analysis == nil {
		return "", nil
	}
	analysisJSON, err := json.Marshal(q.Analysis)
	if err != nil {
		return "", fmt.Errorf("failed to marshal analysis: %w", err)
	}
	return string(analysisJSON), nil
}

// InsertQuote stores a new quote, assigning an ID and creation time when missing.
func (s *SQLiteStorage) InsertQuote(ctx context.Context, q *models.Quote) error {
	if q.BriefingID == "" {
		return fmt.Errorf("quote without briefing: %w", models.ErrInvalidInput)
	}
	analysisJSON, err := prepareQuote(q)
	if err != nil {
		return err
	}
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quotes (`+quoteColumns+`, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.BriefingID, q.SupplierName, q.TotalPrice, q.UnitPrice, q.Quantity,
		q.LeadTimeDays, q.WarrantyMonths, q.ShippingCost, q.Currency, q.PaymentTerms,
		q.WarrantyPeriod, q.Notes, nullString(analysisJSON), string(q.Source), q.CreatedAt, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert quote: %w", err)
	}
	return nil
}

// UpsertQuote inserts q or replaces the stored quote with the same ID.
func (s *SQLiteStorage) UpsertQuote(ctx context.Context, q *models.Quote) error {
	if q.ID == "" {
		return s.InsertQuote(ctx, q)
	}
	existing, err := s.GetQuote(ctx, q.ID)
	switch {
	case err == nil:
		q.CreatedAt = existing.CreatedAt
		return s.UpdateQuote(ctx, q)
	case isNotFound(err):
		return s.InsertQuote(ctx, q)
	default:
		return err
	}
}

// GetQuote returns a quote by ID.
func (s *SQLiteStorage) GetQuote(ctx context.Context, id string) (*models.Quote, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE id = ?`, id)
	q, err := scanQuote(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("quote %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return q, nil
}

// UpdateQuote replaces the mutable fields of an existing quote.
func (s *SQLiteStorage) UpdateQuote(ctx context.Context, q *models.Quote) error {
	analysisJSON, err := prepareQuote(q)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE quotes SET briefing_id = ?, supplier_name = ?, total_price = ?, unit_price = ?,
		 quantity = ?, lead_time_days = ?, warranty_months = ?, shipping_cost = ?, currency = ?,
		 payment_terms = ?, warranty_period = ?, notes = ?, analysis = ?, source = ?, updated_at = ?
		 WHERE id = ?`,
		q.BriefingID, q.SupplierName, q.TotalPrice, q.UnitPrice,
		q.Quantity, q.LeadTimeDays, q.WarrantyMonths, q.ShippingCost, q.Currency,
		q.PaymentTerms, q.WarrantyPeriod, q.Notes, nullString(analysisJSON), string(q.Source), time.Now().UTC(),
		q.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update quote: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("quote %s: %w", q.ID, models.ErrNotFound)
	}
	return nil
}

// DeleteQuote removes a quote by ID.
func (s *SQLiteStorage) DeleteQuote(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM quotes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("quote %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// ListQuotes returns quotes newest first, optionally restricted to one briefing.
func (s *SQLiteStorage) ListQuotes(ctx context.Context, filter models.QuoteFilter) ([]*models.Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes`
	var args []any
	if filter.BriefingID != "" {
		query += ` WHERE briefing_id = ?`
		args = append(args, filter.BriefingID)
	}
	query += ` ORDER BY created_at DESC, id`
	switch {
	case filter.Limit > 0:
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	case filter.Offset > 0:
		// SQLite only accepts OFFSET after a LIMIT; -1 means no limit.
		query += ` LIMIT -1 OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quotes []*models.Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
