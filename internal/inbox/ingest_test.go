package inbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/rfqrank/internal/fileid"
	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/internal/storage"
)

// fakeAnalyzer names the supplier after the file content and prices the quote by its length.
type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeAnalyzer) AnalyzeFile(_ context.Context, briefingID, path string) (*models.Quote, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &models.Quote{
		BriefingID:   briefingID,
		SupplierName: models.String(string(data)),
		TotalPrice:   models.Float(float64(len(data))),
		Currency:     models.DefaultCurrency,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func newIngestor(t *testing.T, an Analyzer) (*Ingestor, *storage.SQLiteStorage, string) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "rfqrank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	root := t.TempDir()
	in, err := NewIngestor(an, store, []string{root}, []string{".txt"}, nil)
	require.NoError(t, err)
	return in, store, root
}

func TestIngestor_BriefingID(t *testing.T) {
	in, _, root := newIngestor(t, &fakeAnalyzer{})

	id, err := in.BriefingID(filepath.Join(root, "b-42", "reply.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b-42", id)

	for _, p := range []string{
		filepath.Join(root, "reply.txt"),
		filepath.Join(root, "b1", "nested", "reply.txt"),
		filepath.Join(t.TempDir(), "b1", "reply.txt"),
	} {
		_, err := in.BriefingID(p)
		assert.ErrorIs(t, err, models.ErrInvalidInput, p)
	}
}

func TestIngestor_IngestReplacesQuoteForSamePath(t *testing.T) {
	ctx := context.Background()
	in, store, root := newIngestor(t, &fakeAnalyzer{})
	path := filepath.Join(root, "b1", "acme.txt")
	writeFile(t, path, "Acme")

	q, err := in.Ingest(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, fileid.QuoteID(path), q.ID)
	assert.Equal(t, "b1", q.BriefingID)
	assert.Equal(t, models.SourceExtraction, q.Source)

	writeFile(t, path, "Acme Ltd")
	_, err = in.Ingest(ctx, path)
	require.NoError(t, err)

	quotes, err := store.ListQuotes(ctx, models.QuoteFilter{BriefingID: "b1"})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, "Acme Ltd", *quotes[0].SupplierName)
	assert.Equal(t, 8.0, *quotes[0].TotalPrice)

	require.NoError(t, in.Remove(ctx, path))
	quotes, _ = store.ListQuotes(ctx, models.QuoteFilter{BriefingID: "b1"})
	assert.Empty(t, quotes)
	assert.NoError(t, in.Remove(ctx, path), "removing twice is not an error")
}

func TestIngestor_AnalyzeFailure(t *testing.T) {
	in, store, root := newIngestor(t, &fakeAnalyzer{err: models.ErrServiceBusy})
	path := filepath.Join(root, "b1", "acme.txt")
	writeFile(t, path, "Acme")

	_, err := in.Ingest(context.Background(), path)
	assert.True(t, errors.Is(err, models.ErrServiceBusy))
	quotes, _ := store.ListQuotes(context.Background(), models.QuoteFilter{})
	assert.Empty(t, quotes)
}

func TestIngestor_Watch(t *testing.T) {
	an := &fakeAnalyzer{}
	in, store, root := newIngestor(t, an)
	in.SetDebounce(50 * time.Millisecond)
	writeFile(t, filepath.Join(root, "b1", "before.txt"), "Early")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := in.Watch(ctx)
	require.NoError(t, err)
	defer w.Stop()

	writeFile(t, filepath.Join(root, "b1", "after.txt"), "Late")
	writeFile(t, filepath.Join(root, "stray.txt"), "no briefing")

	require.Eventually(t, func() bool {
		quotes, err := store.ListQuotes(ctx, models.QuoteFilter{BriefingID: "b1"})
		return err == nil && len(quotes) == 2
	}, 3*time.Second, 20*time.Millisecond)

	all, err := store.ListQuotes(ctx, models.QuoteFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2, "files outside a briefing folder are ignored")
}
