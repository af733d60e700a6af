package inbox

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/rfqrank/internal/fileid"
	"github.com/hyperjump/rfqrank/internal/metrics"
	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/internal/storage"
)

// Analyzer reads a reply file and returns the quote it describes.
type Analyzer interface {
	AnalyzeFile(ctx context.Context, briefingID, path string) (*models.Quote, error)
}

// Ingestor stores quotes for reply files dropped into the inbox roots.
type Ingestor struct {
	analyzer   Analyzer
	quotes     storage.QuoteStore
	roots      []string
	extensions []string
	debounce   time.Duration
	logger     *zap.Logger
}

// NewIngestor creates an ingestor over roots. Files are accepted when their
// extension is in extensions, or always when it is empty.
func NewIngestor(analyzer Analyzer, quotes storage.QuoteStore, roots, extensions []string, logger *zap.Logger) (*Ingestor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		a, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("inbox root %q: %w", r, err)
		}
		abs = append(abs, a)
	}
	return &Ingestor{
		analyzer:   analyzer,
		quotes:     quotes,
		roots:      abs,
		extensions: extensions,
		logger:     logger,
	}, nil
}

// SetDebounce overrides how long a file must settle before it is ingested.
func (in *Ingestor) SetDebounce(d time.Duration) {
	in.debounce = d
}

// BriefingID returns the briefing a reply file belongs to. The file must sit
// directly inside a briefing folder under one of the roots.
func (in *Ingestor) BriefingID(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for _, root := range in.roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil || !inDir(root, abs) {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) == 2 && parts[0] != "" && parts[0] != "." {
			return parts[0], nil
		}
	}
	return "", fmt.Errorf("%s is not in a briefing folder: %w", path, models.ErrInvalidInput)
}

// Ingest analyzes the reply at path and stores its quote. Re-ingesting the same
// path replaces the quote.
func (in *Ingestor) Ingest(ctx context.Context, path string) (*models.Quote, error) {
	briefingID, err := in.BriefingID(path)
	if err != nil {
		return nil, err
	}
	abs, _ := filepath.Abs(path)

	q, err := in.analyzer.AnalyzeFile(ctx, briefingID, abs)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: %w", filepath.Base(abs), err)
	}
	q.ID = fileid.QuoteID(abs)
	q.BriefingID = briefingID
	if q.Source == "" {
		q.Source = models.SourceExtraction
	}
	if err := in.quotes.UpsertQuote(ctx, q); err != nil {
		return nil, fmt.Errorf("store quote: %w", err)
	}
	metrics.QuotesIngested.WithLabelValues(string(q.Source)).Inc()

	in.logger.Info("Ingested reply",
		zap.String("briefing_id", briefingID),
		zap.String("quote_id", q.ID),
		zap.String("file", filepath.Base(abs)))
	return q, nil
}

// Remove deletes the quote stored for path, if any.
func (in *Ingestor) Remove(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	err = in.quotes.DeleteQuote(ctx, fileid.QuoteID(abs))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return err
	}
	return nil
}

// Watch starts a watcher over the roots and ingests files as they settle,
// including those already present. Stop the returned watcher or cancel ctx to end it.
func (in *Ingestor) Watch(ctx context.Context) (*Watcher, error) {
	onFile := func(path string) {
		if _, err := in.BriefingID(path); err != nil {
			return
		}
		if _, err := in.Ingest(ctx, path); err != nil {
			in.logger.Warn("Reply ingestion failed", zap.String("path", path), zap.Error(err))
		}
	}
	onRemove := func(path string) {
		if err := in.Remove(ctx, path); err != nil {
			in.logger.Warn("Quote removal failed", zap.String("path", path), zap.Error(err))
		}
	}

	w := NewWatcher(in.roots, in.extensions, onFile, onRemove, WithLogger(in.logger), WithDebounce(in.debounce))
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	w.SyncExistingFiles()
	return w, nil
}
