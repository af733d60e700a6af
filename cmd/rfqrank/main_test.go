package main

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hyperjump/rfqrank/internal/cli"
	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/internal/scoring"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after briefing are moved first",
			args:     []string{"office-chairs", "-output", "json"},
			expected: []string{"-output", "json", "office-chairs"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-output", "json", "office-chairs"},
			expected: []string{"-output", "json", "office-chairs"},
		},
		{
			name:     "positional only returns unchanged",
			args:     []string{"office-chairs"},
			expected: []string{"office-chairs"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"office-chairs", "reply.pdf", "-store"},
			expected: []string{"-store", "office-chairs", "reply.pdf"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsReorder(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("argsReorder() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseWeightOverrides(t *testing.T) {
	got, err := parseWeightOverrides(" total_price=4, lead_time_days=off ,warranty_months=on,")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d updates, want 3: %v", len(got), got)
	}
	if w, ok := got["total_price"].Weight.(float64); !ok || w != 4 {
		t.Errorf("total_price weight = %v, want 4", got["total_price"].Weight)
	}
	if e := got["lead_time_days"].Enabled; e == nil || *e {
		t.Errorf("lead_time_days should be disabled, got %v", e)
	}
	if e := got["warranty_months"].Enabled; e == nil || !*e {
		t.Errorf("warranty_months should be enabled, got %v", e)
	}

	empty, err := parseWeightOverrides("")
	if err != nil || len(empty) != 0 {
		t.Errorf("empty overrides = %v, %v; want none", empty, err)
	}
}

func TestParseWeightOverrides_invalid(t *testing.T) {
	for _, in := range []string{"total_price", "=3", "total_price=", "total_price=heavy"} {
		if _, err := parseWeightOverrides(in); !errors.Is(err, models.ErrInvalidInput) {
			t.Errorf("parseWeightOverrides(%q) error = %v, want ErrInvalidInput", in, err)
		}
	}
}

func TestParseOutput(t *testing.T) {
	if f, err := parseOutput("json"); err != nil || f != cli.OutputJSON {
		t.Errorf("parseOutput(json) = %q, %v", f, err)
	}
	if _, err := parseOutput("yaml"); err == nil {
		t.Error("expected error for yaml output")
	}
}

func TestReadSupplierFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suppliers.yaml")
	content := `
- name: Tee Works
  email: sales@teeworks.example
  description: Screen printed cotton t-shirts
  categories: [apparel, printing]
  location: Lisbon
- name: Chair Depot
  location: Porto
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	list, err := readSupplierFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d suppliers, want 2", len(list))
	}
	if list[0].Email == nil || *list[0].Email != "sales@teeworks.example" {
		t.Errorf("first email = %v", list[0].Email)
	}
	if !reflect.DeepEqual(list[0].Categories, []string{"apparel", "printing"}) {
		t.Errorf("categories = %v", list[0].Categories)
	}
	if list[1].Email != nil {
		t.Errorf("second supplier should have no email, got %q", *list[1].Email)
	}
}

func TestReadSupplierFile_missingName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suppliers.yaml")
	if err := os.WriteFile(path, []byte("- location: Lisbon\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := readSupplierFile(path); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestRankViaHTTP(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"quotes":[{"id":"q1","briefing_id":"b 1","supplier_name":"Acme","score":75}],"scored":true,"enabled_params":["total_price"]}`))
	}))
	defer srv.Close()

	res, err := rankViaHTTP(srv.URL, "b 1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodGet || gotPath != "/api/v1/briefings/b 1/ranking" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if !res.Scored || len(res.Quotes) != 1 || res.Quotes[0].Score == nil || *res.Quotes[0].Score != 75 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Quotes[0].Quote == nil || res.Quotes[0].ID != "q1" {
		t.Errorf("embedded quote not decoded: %+v", res.Quotes[0])
	}

	_, err = rankViaHTTP(srv.URL, "b 1", map[string]scoring.WeightUpdate{"total_price": {Weight: 2.0}})
	if err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("overrides should be posted, got %s", gotMethod)
	}
}

func TestRankViaHTTP_serverError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"weight for total_price is not a number"}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	if _, err := rankViaHTTP(srv.URL, "b1", nil); err == nil {
		t.Error("expected error for 400 response")
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  database_path: "test.db"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// t.TempDir() may sit behind a symlink (macOS /var -> /private/var).
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPathAndEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
ai:
  api_key_env: RFQRANK_MAIN_TEST_KEY
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("RFQRANK_MAIN_TEST_KEY=from-dotenv\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Unsetenv("RFQRANK_MAIN_TEST_KEY") })

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if got := cfg.AI.APIKey(); got != "from-dotenv" {
		t.Errorf("APIKey() = %q, want value from .env", got)
	}
}
