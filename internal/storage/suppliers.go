package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/rfqrank/internal/models"
)

const supplierColumns = `key, name, email, description, categories, location, website, created_at`

func scanSupplier(row rowScanner) (*models.Supplier, error) {
	var sup models.Supplier
	var description, categories, location, website sql.NullString

	if err := row.Scan(&sup.Key, &sup.Name, &sup.Email, &description, &categories, &location, &website, &sup.CreatedAt); err != nil {
		return nil, err
	}
	sup.Description = description.String
	sup.Location = location.String
	sup.Website = website.String
	if categories.Valid && categories.String != "" {
		if err := json.Unmarshal([]byte(categories.String), &sup.Categories); err != nil {
			return nil, fmt.Errorf("failed to unmarshal categories: %w", err)
		}
	}
	return &sup, nil
}

// UpsertSupplier inserts or replaces a supplier, assigning a key when missing.
func (s *SQLiteStorage) UpsertSupplier(ctx context.Context, sup *models.Supplier) error {
	if sup.Name == "" {
		return fmt.Errorf("supplier without name: %w", models.ErrInvalidInput)
	}
	if sup.Key == "" {
		sup.Key = uuid.NewString()
	}
	if sup.CreatedAt.IsZero() {
		sup.CreatedAt = time.Now().UTC()
	}
	categories, err := json.Marshal(sup.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal categories: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO suppliers (`+supplierColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET name = excluded.name, email = excluded.email,
		 description = excluded.description, categories = excluded.categories,
		 location = excluded.location, website = excluded.website`,
		sup.Key, sup.Name, sup.Email, sup.Description, string(categories), sup.Location, sup.Website, sup.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save supplier: %w", err)
	}
	return nil
}

// GetSupplier returns a supplier by key.
func (s *SQLiteStorage) GetSupplier(ctx context.Context, key string) (*models.Supplier, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+supplierColumns+` FROM suppliers WHERE key = ?`, key)
	sup, err := scanSupplier(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("supplier %s: %w", key, models.ErrNotFound)
	}
	return sup, err
}

// ListSuppliers returns all suppliers ordered by name.
func (s *SQLiteStorage) ListSuppliers(ctx context.Context) ([]*models.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+supplierColumns+` FROM suppliers ORDER BY name, key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Supplier
	for rows.Next() {
		sup, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sup)
	}
	return out, rows.Err()
}

// DeleteSupplier removes a supplier by key.
func (s *SQLiteStorage) DeleteSupplier(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE key = ?`, key)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("supplier %s: %w", key, models.ErrNotFound)
	}
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}
