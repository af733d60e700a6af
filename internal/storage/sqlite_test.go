package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/rfqrank/internal/models"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "nested", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStorage_QuoteCRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	q := &models.Quote{
		BriefingID:   "b1",
		SupplierName: models.String("Acme"),
		TotalPrice:   models.Float(1250.5),
		LeadTimeDays: models.Float(14),
		PaymentTerms: "Net 30",
		Analysis:     map[string]any{"business_rating": 4.5, "ai_summary": "solid"},
		Source:       models.SourceManual,
	}
	if err := store.InsertQuote(ctx, q); err != nil {
		t.Fatal(err)
	}
	if q.ID == "" {
		t.Error("ID should be assigned")
	}
	if q.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
	if q.Currency != models.DefaultCurrency {
		t.Errorf("expected default currency, got %q", q.Currency)
	}

	got, err := store.GetQuote(ctx, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SupplierName == nil || *got.SupplierName != "Acme" {
		t.Errorf("supplier name not round-tripped: %+v", got.SupplierName)
	}
	if got.TotalPrice == nil || *got.TotalPrice != 1250.5 {
		t.Errorf("total price not round-tripped: %+v", got.TotalPrice)
	}
	if got.UnitPrice != nil || got.WarrantyMonths != nil {
		t.Error("absent numeric fields should stay nil")
	}
	if got.Analysis["business_rating"] != 4.5 {
		t.Errorf("analysis not round-tripped: %v", got.Analysis)
	}
	if got.Source != models.SourceManual || got.PaymentTerms != "Net 30" {
		t.Errorf("got %+v", got)
	}

	q.TotalPrice = nil
	q.WarrantyMonths = models.Float(24)
	if err := store.UpdateQuote(ctx, q); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetQuote(ctx, q.ID)
	if got.TotalPrice != nil || got.WarrantyMonths == nil || *got.WarrantyMonths != 24 {
		t.Errorf("update not applied: %+v", got)
	}

	if err := store.DeleteQuote(ctx, q.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetQuote(ctx, q.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.DeleteQuote(ctx, q.ID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
	if err := store.UpdateQuote(ctx, q); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound updating missing quote, got %v", err)
	}
}

func TestSQLiteStorage_InsertQuoteRequiresBriefing(t *testing.T) {
	store := newTestStorage(t)
	err := store.InsertQuote(context.Background(), &models.Quote{})
	if !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSQLiteStorage_ListQuotes(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	for i, b := range []string{"b1", "b1", "b2", "b1"} {
		q := &models.Quote{
			ID:         string(rune('a' + i)),
			BriefingID: b,
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		}
		if err := store.InsertQuote(ctx, q); err != nil {
			t.Fatal(err)
		}
	}

	all, err := store.ListQuotes(ctx, models.QuoteFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Errorf("expected 4 quotes, got %d", len(all))
	}

	b1, err := store.ListQuotes(ctx, models.QuoteFilter{BriefingID: "b1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(b1) != 3 {
		t.Fatalf("expected 3 quotes for b1, got %d", len(b1))
	}
	if b1[0].ID != "d" || b1[2].ID != "a" {
		t.Errorf("expected newest first, got %s..%s", b1[0].ID, b1[2].ID)
	}

	page, err := store.ListQuotes(ctx, models.QuoteFilter{BriefingID: "b1", Offset: 1, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].ID != "b" {
		t.Errorf("unexpected page: %+v", page)
	}

	rest, err := store.ListQuotes(ctx, models.QuoteFilter{BriefingID: "b1", Offset: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != 2 || rest[0].ID != "b" || rest[1].ID != "a" {
		t.Errorf("offset without limit should skip one quote, got %d", len(rest))
	}

	none, err := store.ListQuotes(ctx, models.QuoteFilter{BriefingID: "missing"})
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("expected no quotes, got %d", len(none))
	}
}

func TestSQLiteStorage_UpsertQuote(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	q := &models.Quote{ID: "file-1", BriefingID: "b1", TotalPrice: models.Float(10), CreatedAt: created}
	if err := store.UpsertQuote(ctx, q); err != nil {
		t.Fatal(err)
	}

	again := &models.Quote{ID: "file-1", BriefingID: "b1", TotalPrice: models.Float(12)}
	if err := store.UpsertQuote(ctx, again); err != nil {
		t.Fatal(err)
	}

	list, _ := store.ListQuotes(ctx, models.QuoteFilter{BriefingID: "b1"})
	if len(list) != 1 {
		t.Fatalf("expected upsert to replace, got %d quotes", len(list))
	}
	if *list[0].TotalPrice != 12 {
		t.Errorf("expected updated price, got %v", *list[0].TotalPrice)
	}
	if !list[0].CreatedAt.Equal(created) {
		t.Errorf("expected creation time kept, got %v", list[0].CreatedAt)
	}
}

func TestSQLiteStorage_Weights(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	blob, err := store.LoadWeights(ctx, "b1")
	if err != nil || blob != nil {
		t.Fatalf("expected nil, nil for unsaved weights; got %q, %v", blob, err)
	}

	if err := store.SaveWeights(ctx, "b1", []byte(`{"total_price":{"enabled":true,"weight":2}}`)); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveWeights(ctx, "b1", []byte(`{"total_price":{"enabled":false,"weight":3}}`)); err != nil {
		t.Fatal(err)
	}

	blob, err = store.LoadWeights(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if string(blob) != `{"total_price":{"enabled":false,"weight":3}}` {
		t.Errorf("expected latest blob, got %s", blob)
	}
}

func TestSQLiteStorage_ConversationState(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	state, err := store.LoadState(ctx, "b1")
	if err != nil || state != nil {
		t.Fatalf("expected nil state, got %+v, %v", state, err)
	}

	in := &models.ConversationState{
		BriefingID:    "b1",
		Phase:         models.PhaseAskingQuestions,
		Description:   "I need 100 custom t-shirts",
		Location:      "Lisbon, Portugal",
		Questions:     []string{"What sizes do you need?", "Which colors do you need?"},
		QuestionIndex: 1,
		Answers:       []string{"M and L"},
		History: []models.ChatTurn{
			{Role: models.RoleUser, Content: "I need 100 custom t-shirts", Kind: models.KindDescription},
		},
	}
	if err := store.SaveState(ctx, in); err != nil {
		t.Fatal(err)
	}
	in.QuestionIndex = 2
	if err := store.SaveState(ctx, in); err != nil {
		t.Fatal(err)
	}

	got, err := store.LoadState(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Phase != models.PhaseAskingQuestions || got.QuestionIndex != 2 || len(got.Questions) != 2 {
		t.Errorf("unexpected state: %+v", got)
	}
	if len(got.History) != 1 || got.History[0].Kind != models.KindDescription {
		t.Errorf("history not round-tripped: %+v", got.History)
	}

	if err := store.DeleteState(ctx, "b1"); err != nil {
		t.Fatal(err)
	}
	got, _ = store.LoadState(ctx, "b1")
	if got != nil {
		t.Error("expected state deleted")
	}
	if err := store.DeleteState(ctx, "b1"); err != nil {
		t.Errorf("deleting missing state should succeed, got %v", err)
	}

	if err := store.SaveState(ctx, &models.ConversationState{}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSQLiteStorage_Transcript(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	turns, err := store.LoadTranscript(ctx, "b1")
	if err != nil || turns != nil {
		t.Fatalf("expected empty transcript, got %v, %v", turns, err)
	}

	err = store.AppendTranscript(ctx, "b1",
		models.ChatTurn{Role: models.RoleUser, Content: "I need mugs", Kind: models.KindDescription},
		models.ChatTurn{Role: models.RoleAssistant, Content: "Where are you located?", Kind: models.KindPrompt},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AppendTranscript(ctx, "b1", models.ChatTurn{Role: models.RoleUser, Content: "Porto", Kind: models.KindLocation}); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendTranscript(ctx, "b2", models.ChatTurn{Role: models.RoleUser, Content: "other"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AppendTranscript(ctx, "b1"); err != nil {
		t.Fatal(err)
	}

	turns, err = store.LoadTranscript(ctx, "b1")
	if err != nil {
		t.Fatal(err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Kind != models.KindDescription || turns[2].Content != "Porto" || turns[1].Role != models.RoleAssistant {
		t.Errorf("unexpected transcript: %+v", turns)
	}
	if turns[0].CreatedAt.IsZero() {
		t.Error("expected creation time set")
	}
}

func TestSQLiteStorage_Suppliers(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	sup := &models.Supplier{
		Name:       "Tee Factory",
		Email:      models.String("sales@tee.example"),
		Categories: []string{"apparel", "printing"},
		Location:   "Lisbon, Portugal",
	}
	if err := store.UpsertSupplier(ctx, sup); err != nil {
		t.Fatal(err)
	}
	if sup.Key == "" {
		t.Fatal("expected key assigned")
	}
	if err := store.UpsertSupplier(ctx, &models.Supplier{Key: "mugs", Name: "Mug Co"}); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetSupplier(ctx, sup.Key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Email == nil || *got.Email != "sales@tee.example" || len(got.Categories) != 2 {
		t.Errorf("unexpected supplier: %+v", got)
	}

	noEmail, _ := store.GetSupplier(ctx, "mugs")
	if noEmail.Email != nil {
		t.Error("expected nil email")
	}

	sup.Location = "Porto, Portugal"
	if err := store.UpsertSupplier(ctx, sup); err != nil {
		t.Fatal(err)
	}
	list, err := store.ListSuppliers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "Mug Co" || list[1].Location != "Porto, Portugal" {
		t.Errorf("unexpected list: %+v", list)
	}

	if err := store.DeleteSupplier(ctx, "mugs"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetSupplier(ctx, "mugs"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.UpsertSupplier(ctx, &models.Supplier{}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestSQLiteStorage_Stats(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_ = store.InsertQuote(ctx, &models.Quote{BriefingID: "b1"})
	_ = store.InsertQuote(ctx, &models.Quote{BriefingID: "b1"})
	_ = store.InsertQuote(ctx, &models.Quote{BriefingID: "b2"})
	_ = store.UpsertSupplier(ctx, &models.Supplier{Name: "S"})
	_ = store.AppendTranscript(ctx, "b1", models.ChatTurn{Role: models.RoleUser, Content: "x"})

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Quotes != 3 || st.Briefings != 2 || st.Suppliers != 1 || st.ChatTurns != 1 || st.Conversations != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if st.DiskBytes <= 0 {
		t.Error("expected database size to be measured")
	}
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "f1.txt")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"single file", []string{f1}, 5},
		{"directory", []string{sub}, 2},
		{"file and dir", []string{f1, sub}, 7},
		{"missing skipped", []string{f1, filepath.Join(dir, "nope")}, 5},
		{"empty skipped", []string{"", sub}, 2},
	}
	for _, tt := range tests {
		got, err := DiskUsageBytes(tt.paths...)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %d bytes, want %d", tt.name, got, tt.want)
		}
	}
}
