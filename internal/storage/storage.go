// Package storage defines the persistence interfaces for quotes, weights,
// conversations and suppliers.
package storage

import (
	"context"

	"github.com/hyperjump/rfqrank/internal/models"
)

// QuoteStore persists supplier quotes.
type QuoteStore interface {
	ListQuotes(ctx context.Context, filter models.QuoteFilter) ([]*models.Quote, error)
	GetQuote(ctx context.Context, id string) (*models.Quote, error)
	InsertQuote(ctx context.Context, q *models.Quote) error
	UpdateQuote(ctx context.Context, q *models.Quote) error
	// UpsertQuote inserts q or replaces the quote with the same ID, keeping its creation time.
	UpsertQuote(ctx context.Context, q *models.Quote) error
	DeleteQuote(ctx context.Context, id string) error
}

// WeightStore persists one opaque weight configuration blob per briefing.
type WeightStore interface {
	// LoadWeights returns nil when nothing was saved for the briefing.
	LoadWeights(ctx context.Context, briefingID string) ([]byte, error)
	SaveWeights(ctx context.Context, briefingID string, blob []byte) error
}

// ConversationStore persists conversation state and the append-only transcript.
type ConversationStore interface {
	SaveState(ctx context.Context, state *models.ConversationState) error
	// LoadState returns nil when no state is stored.
	LoadState(ctx context.Context, briefingID string) (*models.ConversationState, error)
	DeleteState(ctx context.Context, briefingID string) error
	AppendTranscript(ctx context.Context, briefingID string, turns ...models.ChatTurn) error
	// LoadTranscript returns the turns oldest first, or nil when there are none.
	LoadTranscript(ctx context.Context, briefingID string) ([]models.ChatTurn, error)
}

// SupplierStore persists the supplier directory.
type SupplierStore interface {
	UpsertSupplier(ctx context.Context, s *models.Supplier) error
	GetSupplier(ctx context.Context, key string) (*models.Supplier, error)
	ListSuppliers(ctx context.Context) ([]*models.Supplier, error)
	DeleteSupplier(ctx context.Context, key string) error
}

// Storage is everything the service persists.
type Storage interface {
	QuoteStore
	WeightStore
	ConversationStore
	SupplierStore

	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
