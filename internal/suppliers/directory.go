// Package suppliers keeps the supplier directory: records in storage, searchable
// through a Bleve full-text index.
package suppliers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/internal/storage"
)

// DefaultLimit caps search results when the caller passes no limit.
const DefaultLimit = 10

const (
	nameBoost     = 1.5
	categoryBoost = 2.0
	fuzziness     = 1
)

// indexDoc is what Bleve sees of a supplier.
type indexDoc struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Categories  string `json:"categories"`
	Location    string `json:"location"`
}

// Directory stores suppliers and finds them by what they sell and where they are.
type Directory struct {
	store  storage.SupplierStore
	index  bleve.Index
	logger *zap.Logger
}

// Open creates or opens the index at indexPath. An empty path keeps the index in
// memory; call Reindex to fill it from storage.
func Open(indexPath string, store storage.SupplierStore, logger *zap.Logger) (*Directory, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Directory{store: store, logger: logger}

	var err error
	switch {
	case indexPath == "":
		d.index, err = bleve.NewMemOnly(indexMapping())
	case exists(indexPath):
		d.index, err = bleve.Open(indexPath)
	default:
		d.index, err = bleve.New(indexPath, indexMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open supplier index: %w", err)
	}
	return d, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// indexMapping uses the standard analyzer so category words match without stemming.
func indexMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	for _, field := range []string{"name", "description", "categories", "location"} {
		doc.AddFieldMappingsAt(field, text)
	}

	im.AddDocumentMapping("supplier", doc)
	im.DefaultType = "supplier"
	im.DefaultMapping = doc
	return im
}

// Add saves a supplier and indexes it. A supplier without a key gets one.
func (d *Directory) Add(ctx context.Context, s *models.Supplier) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Email != nil && strings.TrimSpace(*s.Email) == "" {
		s.Email = nil
	}
	if err := d.store.UpsertSupplier(ctx, s); err != nil {
		return err
	}
	if err := d.index.Index(s.Key, toDoc(s)); err != nil {
		return fmt.Errorf("failed to index supplier %s: %w", s.Key, err)
	}
	return nil
}

// Remove deletes a supplier from storage and the index.
func (d *Directory) Remove(ctx context.Context, key string) error {
	if err := d.store.DeleteSupplier(ctx, key); err != nil {
		return err
	}
	return d.index.Delete(key)
}

// Get returns a supplier by key.
func (d *Directory) Get(ctx context.Context, key string) (*models.Supplier, error) {
	return d.store.GetSupplier(ctx, key)
}

// List returns every supplier in storage.
func (d *Directory) List(ctx context.Context) ([]*models.Supplier, error) {
	return d.store.ListSuppliers(ctx)
}

// Reindex rebuilds the index from storage and returns the number of suppliers indexed.
func (d *Directory) Reindex(ctx context.Context) (int, error) {
	all, err := d.store.ListSuppliers(ctx)
	if err != nil {
		return 0, err
	}
	batch := d.index.NewBatch()
	for _, s := range all {
		if err := batch.Index(s.Key, toDoc(s)); err != nil {
			return 0, fmt.Errorf("failed to index supplier %s: %w", s.Key, err)
		}
	}
	if err := d.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to write supplier index: %w", err)
	}
	d.logger.Info("Supplier index rebuilt", zap.Int("suppliers", len(all)))
	return len(all), nil
}

// Count returns the number of indexed suppliers.
func (d *Directory) Count() (uint64, error) {
	return d.index.DocCount()
}

// Close closes the index.
func (d *Directory) Close() error {
	return d.index.Close()
}

// Search finds suppliers for a product description near location. Suppliers
// matching both come first; when none do, the location is dropped, and when
// nothing matches at all a fuzzy query tolerates typos.
func (d *Directory) Search(ctx context.Context, description, location string, limit int) ([]*models.Supplier, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultLimit
	}

	what := matchQuery(description)
	attempts := []blevequery.Query{what}
	if loc := strings.TrimSpace(location); loc != "" {
		where := bleve.NewMatchQuery(loc)
		where.SetField("location")
		attempts = []blevequery.Query{bleve.NewConjunctionQuery(what, where), what}
	}
	attempts = append(attempts, fuzzyQuery(description))

	for i, q := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req := bleve.NewSearchRequest(q)
		req.Size = limit
		res, err := d.index.Search(req)
		if err != nil {
			return nil, fmt.Errorf("supplier search failed: %w", err)
		}
		if len(res.Hits) == 0 {
			continue
		}
		d.logger.Debug("Supplier search matched",
			zap.String("description", description),
			zap.String("location", location),
			zap.Int("attempt", i),
			zap.Int("hits", len(res.Hits)))

		out := make([]*models.Supplier, 0, len(res.Hits))
		for _, hit := range res.Hits {
			s, err := d.store.GetSupplier(ctx, hit.ID)
			if errors.Is(err, models.ErrNotFound) {
				d.logger.Warn("Indexed supplier missing from storage", zap.String("key", hit.ID))
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, nil
}

// matchQuery matches the description against what a supplier sells.
func matchQuery(text string) blevequery.Query {
	desc := bleve.NewMatchQuery(text)
	desc.SetField("description")

	cats := bleve.NewMatchQuery(text)
	cats.SetField("categories")
	cats.SetBoost(categoryBoost)

	name := bleve.NewMatchQuery(text)
	name.SetField("name")
	name.SetBoost(nameBoost)

	return bleve.NewDisjunctionQuery(desc, cats, name)
}

// fuzzyQuery is a disjunction of per-term fuzzy queries over the same fields.
func fuzzyQuery(text string) blevequery.Query {
	var queries []blevequery.Query
	for _, term := range tokenize(text) {
		for _, field := range []string{"description", "categories", "name"} {
			fq := bleve.NewFuzzyQuery(term)
			fq.SetFuzziness(fuzziness)
			fq.SetField(field)
			queries = append(queries, fq)
		}
	}
	if len(queries) == 0 {
		return bleve.NewMatchNoneQuery()
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// tokenize lowercases text and keeps words long enough for edit distance to be meaningful.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r > 127)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 3 {
			out = append(out, f)
		}
	}
	return out
}

func toDoc(s *models.Supplier) indexDoc {
	return indexDoc{
		Name:        s.Name,
		Description: s.Description,
		Categories:  strings.Join(s.Categories, " "),
		Location:    s.Location,
	}
}
