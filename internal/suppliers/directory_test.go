package suppliers

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/internal/storage"
)

func newDirectory(t *testing.T, indexPath string) (*Directory, *storage.SQLiteStorage) {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "rfqrank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	d, err := Open(indexPath, store, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d, store
}

func seed(t *testing.T, d *Directory) {
	t.Helper()
	ctx := context.Background()
	for _, s := range []*models.Supplier{
		{Key: "tee-lisbon", Name: "TeeWorks", Email: models.String("sales@teeworks.example"),
			Description: "Custom printed cotton t-shirts and hoodies", Categories: []string{"apparel", "printing"}, Location: "Lisbon, Portugal"},
		{Key: "tee-porto", Name: "Porto Apparel", Email: nil,
			Description: "Organic t-shirts with screen printing", Categories: []string{"apparel"}, Location: "Porto, Portugal"},
		{Key: "mugs-berlin", Name: "Becher GmbH", Email: models.String("info@becher.example"),
			Description: "Ceramic mugs with logo printing", Categories: []string{"drinkware"}, Location: "Berlin, Germany"},
	} {
		require.NoError(t, d.Add(ctx, s))
	}
}

func keys(list []*models.Supplier) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.Key
	}
	return out
}

func TestSearch_descriptionAndLocation(t *testing.T) {
	d, _ := newDirectory(t, "")
	seed(t, d)

	got, err := d.Search(context.Background(), "cotton t-shirts", "Lisbon", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"tee-lisbon"}, keys(got))
	assert.Equal(t, "sales@teeworks.example", *got[0].Email)
}

func TestSearch_locationFallback(t *testing.T) {
	d, _ := newDirectory(t, "")
	seed(t, d)

	got, err := d.Search(context.Background(), "hoodies", "Madrid", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"tee-lisbon"}, keys(got), "location is dropped when nobody there matches")
}

func TestSearch_fuzzyFallback(t *testing.T) {
	d, _ := newDirectory(t, "")
	seed(t, d)

	got, err := d.Search(context.Background(), "ceramik", "", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"mugs-berlin"}, keys(got))
}

func TestSearch_noMatch(t *testing.T) {
	d, _ := newDirectory(t, "")
	seed(t, d)

	got, err := d.Search(context.Background(), "industrial turbines", "Tokyo", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = d.Search(context.Background(), "  ", "Lisbon", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_nullableEmail(t *testing.T) {
	d, _ := newDirectory(t, "")
	seed(t, d)

	got, err := d.Search(context.Background(), "organic", "Porto", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Email)
}

func TestAddAndRemove(t *testing.T) {
	d, store := newDirectory(t, "")
	ctx := context.Background()

	s := &models.Supplier{Name: " Flag Co ", Email: models.String(" "), Description: "Banners and flags"}
	require.NoError(t, d.Add(ctx, s))
	assert.NotEmpty(t, s.Key)
	assert.Equal(t, "Flag Co", s.Name)
	assert.Nil(t, s.Email)

	n, err := d.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	require.NoError(t, d.Remove(ctx, s.Key))
	_, err = store.GetSupplier(ctx, s.Key)
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := d.Search(ctx, "banners", "", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.ErrorIs(t, d.Add(ctx, &models.Supplier{Name: ""}), models.ErrInvalidInput)
}

func TestReindexAndReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "rfqrank.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.UpsertSupplier(ctx, &models.Supplier{Key: "k1", Name: "Paper Mill", Description: "Recycled notebooks"}))

	indexPath := filepath.Join(dir, "suppliers.bleve")
	d, err := Open(indexPath, store, nil)
	require.NoError(t, err)
	n, err := d.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, d.Close())

	d, err = Open(indexPath, store, nil)
	require.NoError(t, err)
	defer d.Close()
	got, err := d.Search(ctx, "notebooks", "", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1"}, keys(got))
}
