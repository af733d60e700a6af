// Package main is the rfqrank CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/rfqrank/internal/ai"
	"github.com/hyperjump/rfqrank/internal/analysis"
	"github.com/hyperjump/rfqrank/internal/cli"
	"github.com/hyperjump/rfqrank/internal/config"
	"github.com/hyperjump/rfqrank/internal/conversation"
	"github.com/hyperjump/rfqrank/internal/extract"
	"github.com/hyperjump/rfqrank/internal/inbox"
	"github.com/hyperjump/rfqrank/internal/models"
	"github.com/hyperjump/rfqrank/internal/scoring"
	"github.com/hyperjump/rfqrank/internal/server"
	"github.com/hyperjump/rfqrank/internal/storage"
	"github.com/hyperjump/rfqrank/internal/suppliers"
	"github.com/hyperjump/rfqrank/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/rfqrank/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins if it exists. A .env next to the loaded file is applied
// first so secrets can live outside the YAML.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				path = fallback
			}
		}
	}
	if err := config.LoadEnv(path); err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "rank":
		runRank()
	case "analyze":
		runAnalyze()
	case "suppliers":
		runSuppliers()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("rfqrank version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// setup loads the config and builds a logger; every subcommand starts here.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fail("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fail("Failed to create logger: %v", err)
	}
	return cfg, resolved, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, logger := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", cfg.Debug || *debug),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if cfg.Conversation.SweepSchedule != "" {
		sweeps, err := components.Machine.ScheduleSweep(cfg.Conversation.SweepSchedule, cfg.Conversation.StateTTL)
		if err != nil {
			logger.Fatal("Failed to schedule conversation sweep", zap.Error(err))
		}
		defer sweeps.Stop()
	}

	if len(cfg.Inbox.Directories) > 0 {
		ingestor, err := inbox.NewIngestor(components.Analyzer, components.Storage,
			cfg.Inbox.Directories, cfg.Inbox.Extensions, logger)
		if err != nil {
			logger.Fatal("Failed to create inbox", zap.Error(err))
		}
		w, err := ingestor.Watch(ctx)
		if err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(server.Deps{
		Storage:       components.Storage,
		Engine:        scoring.NewEngine(nil),
		Analyzer:      components.Analyzer,
		Conversations: components.Machine,
		Suppliers:     components.Suppliers,
		Config:        cfg,
		Logger:        logger,
	})
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = srv.Stop(stopCtx)
}

// argsReorder moves flags that follow the positional arguments to the front,
// since flag.Parse stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// parseWeightOverrides reads "key=weight" pairs separated by commas. A weight of
// "off" disables the parameter, "on" enables it at its current weight.
func parseWeightOverrides(s string) (map[string]scoring.WeightUpdate, error) {
	updates := map[string]scoring.WeightUpdate{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("%w: weight override %q must look like key=weight", models.ErrInvalidInput, pair)
		}
		switch strings.ToLower(value) {
		case "off":
			updates[key] = scoring.WeightUpdate{Enabled: boolPtr(false)}
		case "on":
			updates[key] = scoring.WeightUpdate{Enabled: boolPtr(true)}
		default:
			w, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: weight for %s is not a number: %q", models.ErrInvalidInput, key, value)
			}
			updates[key] = scoring.WeightUpdate{Weight: w}
		}
	}
	return updates, nil
}

func boolPtr(b bool) *bool { return &b }

func runRank() {
	fs := flag.NewFlagSet("rank", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, `server URL; use "" to read storage directly`)
	weightsFlag := fs.String("weights", "", "weight overrides, e.g. total_price=4,lead_time_days=off (not saved)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: rfqrank rank [flags] <briefing-id>")
		os.Exit(1)
	}
	briefingID := fs.Arg(0)
	format, err := parseOutput(*outputFormat)
	if err != nil {
		fail("%v", err)
	}
	updates, err := parseWeightOverrides(*weightsFlag)
	if err != nil {
		fail("%v", err)
	}

	var res *scoring.Result
	if *serverURL != "" {
		res, err = rankViaHTTP(*serverURL, briefingID, updates)
	} else {
		res, err = rankDirect(*configPath, briefingID, updates)
	}
	if err != nil {
		fail("Ranking failed: %v", err)
	}
	if err := cli.WriteRanking(os.Stdout, res, format); err != nil {
		fail("Output failed: %v", err)
	}
}

func rankViaHTTP(serverURL, briefingID string, updates map[string]scoring.WeightUpdate) (*scoring.Result, error) {
	endpoint := serverURL + "/api/v1/briefings/" + url.PathEscape(briefingID) + "/ranking"
	var (
		resp *http.Response
		err  error
	)
	if len(updates) > 0 {
		body, marshalErr := json.Marshal(updates)
		if marshalErr != nil {
			return nil, marshalErr
		}
		resp, err = http.Post(endpoint, "application/json", bytes.NewReader(body))
	} else {
		resp, err = http.Get(endpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var res scoring.Result
	if err := decodeResponse(resp, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func rankDirect(configPath, briefingID string, updates map[string]scoring.WeightUpdate) (*scoring.Result, error) {
	cfg, _, logger := setup(configPath, false)
	defer logger.Sync()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	quotes, err := store.ListQuotes(ctx, models.QuoteFilter{BriefingID: briefingID})
	if err != nil {
		return nil, err
	}
	blob, err := store.LoadWeights(ctx, briefingID)
	if err != nil {
		return nil, err
	}
	saved, err := scoring.DecodeWeights(blob)
	if err != nil {
		logger.Warn("Stored weights unreadable, using defaults", zap.Error(err))
		saved = nil
	}

	engine := scoring.NewEngine(nil)
	weights := scoring.InitializeWeights(engine.Catalog().Eligible(quotes), saved)
	for key, u := range updates {
		if err := weights.Update(key, u); err != nil {
			return nil, err
		}
	}
	return engine.Score(quotes, weights), nil
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	store := fs.Bool("store", false, "save the extracted quote under the briefing")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 2 {
		fmt.Println("Usage: rfqrank analyze [flags] <briefing-id> <reply-file>")
		os.Exit(1)
	}
	briefingID, path := fs.Arg(0), fs.Arg(1)
	format, err := parseOutput(*outputFormat)
	if err != nil {
		fail("%v", err)
	}

	cfg, _, logger := setup(*configPath, *debug)
	defer logger.Sync()

	ctx := context.Background()
	analyzer := analysis.New(newGenerator(cfg, logger), extract.NewExtractor(), logger)
	q, err := analyzer.AnalyzeFile(ctx, briefingID, path)
	if err != nil {
		fail("Analysis failed: %v", err)
	}
	if *store {
		db, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			fail("Failed to open storage: %v", err)
		}
		defer db.Close()
		if err := db.InsertQuote(ctx, q); err != nil {
			fail("Failed to store quote: %v", err)
		}
	}
	if err := cli.WriteQuote(os.Stdout, q, format); err != nil {
		fail("Output failed: %v", err)
	}
}

// supplierEntry is one supplier in an import file.
type supplierEntry struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Email       string   `yaml:"email"`
	Description string   `yaml:"description"`
	Categories  []string `yaml:"categories"`
	Location    string   `yaml:"location"`
	Website     string   `yaml:"website"`
}

// readSupplierFile parses a YAML (or JSON) list of suppliers.
func readSupplierFile(path string) ([]*models.Supplier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []supplierEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	out := make([]*models.Supplier, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("%w: supplier %d in %s has no name", models.ErrInvalidInput, i+1, path)
		}
		s := &models.Supplier{
			Key:         e.Key,
			Name:        e.Name,
			Description: e.Description,
			Categories:  e.Categories,
			Location:    e.Location,
			Website:     e.Website,
		}
		if e.Email != "" {
			s.Email = models.String(e.Email)
		}
		out = append(out, s)
	}
	return out, nil
}

func runSuppliers() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: rfqrank suppliers <import|list|reindex> [flags]")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("suppliers "+sub, flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(argsReorder(os.Args[3:]))

	cfg, _, logger := setup(*configPath, false)
	defer logger.Sync()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		fail("Failed to open storage: %v", err)
	}
	defer store.Close()
	dir, err := suppliers.Open(cfg.Storage.SupplierIndexPath, store, logger)
	if err != nil {
		fail("Failed to open supplier index: %v", err)
	}
	defer dir.Close()

	ctx := context.Background()
	switch sub {
	case "import":
		if fs.NArg() < 1 {
			fmt.Println("Usage: rfqrank suppliers import [flags] <suppliers.yaml>")
			os.Exit(1)
		}
		list, err := readSupplierFile(fs.Arg(0))
		if err != nil {
			fail("Import failed: %v", err)
		}
		for _, s := range list {
			if err := dir.Add(ctx, s); err != nil {
				fail("Import of %s failed: %v", s.Name, err)
			}
		}
		fmt.Printf("Imported %d suppliers\n", len(list))
	case "list":
		list, err := dir.List(ctx)
		if err != nil {
			fail("List failed: %v", err)
		}
		for _, s := range list {
			email := "-"
			if s.Email != nil {
				email = *s.Email
			}
			fmt.Printf("%s\t%s\t%s\t%s\n", s.Key, s.Name, s.Location, email)
		}
	case "reindex":
		n, err := dir.Reindex(ctx)
		if err != nil {
			fail("Reindex failed: %v", err)
		}
		fmt.Printf("Reindexed %d suppliers\n", n)
	default:
		fail("Unknown suppliers command %q; use import, list or reindex", sub)
	}
}

type statusResponse struct {
	Quotes           int64          `json:"quotes"`
	Briefings        int64          `json:"briefings"`
	Suppliers        int64          `json:"suppliers"`
	Conversations    int64          `json:"conversations"`
	ChatTurns        int64          `json:"chat_turns"`
	IndexedSuppliers *uint64        `json:"indexed_suppliers,omitempty"`
	DiskUsageBytes   *int64         `json:"disk_usage_bytes,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct storage mode)")
	serverURL := fs.String("server", defaultServerURL, `server URL; use "" to read storage directly`)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := parseOutput(*outputFormat)
	if err != nil {
		fail("%v", err)
	}

	var status *statusResponse
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = statusDirect(*configPath)
	}
	if err != nil {
		fail("Status failed: %v", err)
	}

	if format == cli.OutputJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fail("Output failed: %v", err)
		}
		return
	}
	fmt.Printf("quotes:             %d\n", status.Quotes)
	fmt.Printf("briefings:          %d\n", status.Briefings)
	fmt.Printf("suppliers:          %d\n", status.Suppliers)
	if status.IndexedSuppliers != nil {
		fmt.Printf("indexed_suppliers:  %d\n", *status.IndexedSuppliers)
	}
	fmt.Printf("conversations:      %d\n", status.Conversations)
	fmt.Printf("chat_turns:         %d\n", status.ChatTurns)
	if status.DiskUsageBytes != nil {
		fmt.Printf("disk_usage_bytes:   %d   # database + supplier index\n", *status.DiskUsageBytes)
	}
	if len(status.Config) > 0 {
		fmt.Println()
		fmt.Println("# configuration")
		for _, key := range []string{"database_path", "supplier_index_path", "conversation_backend", "ai_model"} {
			if v, ok := status.Config[key]; ok && v != "" {
				fmt.Printf("%-20s%v\n", key+":", v)
			}
		}
	}
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	var s statusResponse
	if err := decodeResponse(resp, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func statusDirect(configPath string) (*statusResponse, error) {
	cfg, _, logger := setup(configPath, false)
	defer logger.Sync()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()
	stats, err := store.Stats(context.Background())
	if err != nil {
		return nil, err
	}
	status := &statusResponse{
		Quotes:        stats.Quotes,
		Briefings:     stats.Briefings,
		Suppliers:     stats.Suppliers,
		Conversations: stats.Conversations,
		ChatTurns:     stats.ChatTurns,
		Config: map[string]any{
			"database_path":        cfg.Storage.DatabasePath,
			"supplier_index_path":  cfg.Storage.SupplierIndexPath,
			"conversation_backend": cfg.Conversation.Backend,
			"ai_model":             cfg.AI.Model,
		},
	}
	if indexBytes, err := storage.DiskUsageBytes(cfg.Storage.SupplierIndexPath); err == nil {
		total := stats.DiskBytes + indexBytes
		status.DiskUsageBytes = &total
	}
	return status, nil
}

func decodeResponse(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseOutput(s string) (cli.OutputFormat, error) {
	switch cli.OutputFormat(s) {
	case cli.OutputText, cli.OutputJSON:
		return cli.OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

func newGenerator(cfg *config.Config, logger *zap.Logger) ai.Generator {
	if cfg.AI.APIKey() == "" {
		logger.Warn("no AI API key set; model calls will be rejected",
			zap.String("env", cfg.AI.APIKeyEnv))
	}
	client := ai.NewClient(ai.ClientConfig{
		Endpoint: cfg.AI.Endpoint,
		Model:    cfg.AI.Model,
		APIKey:   cfg.AI.APIKey(),
		Timeout:  cfg.AI.Timeout,
	}, logger)
	return ai.WithRetry(client, cfg.AI.MaxAttempts, cfg.AI.BaseDelay, logger)
}

// Components holds initialized services.
type Components struct {
	Storage   *storage.SQLiteStorage
	Suppliers *suppliers.Directory
	Analyzer  *analysis.Analyzer
	Machine   *conversation.Machine
	live      io.Closer
}

func (c *Components) Close() {
	if c.live != nil {
		_ = c.live.Close()
	}
	if c.Suppliers != nil {
		_ = c.Suppliers.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c := &Components{Storage: store}

	c.Suppliers, err = suppliers.Open(cfg.Storage.SupplierIndexPath, store, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to open supplier index: %w", err)
	}

	gen := newGenerator(cfg, logger)
	c.Analyzer = analysis.New(gen, extract.NewExtractor(), logger)

	var live conversation.StateStore
	switch cfg.Conversation.Backend {
	case config.BackendRedis:
		redisStore, err := conversation.NewRedisStateStore(ctx, conversation.RedisOptions{
			Addr:     cfg.Conversation.RedisAddr,
			Password: cfg.Conversation.RedisPassword(),
			DB:       cfg.Conversation.RedisDB,
			TTL:      cfg.Conversation.StateTTL,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		live, c.live = redisStore, redisStore
	default:
		live = conversation.NewMemoryStateStore()
	}
	logger.Info("conversation state store initialized", zap.String("backend", cfg.Conversation.Backend))

	c.Machine, err = conversation.NewMachine(conversation.Config{
		Generator:     gen,
		Live:          live,
		Persistence:   store,
		Suppliers:     c.Suppliers,
		SupplierLimit: cfg.Conversation.SupplierLimit,
		Logger:        logger,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create conversation machine: %w", err)
	}
	return c, nil
}

func printUsage() {
	fmt.Println(`rfqrank - Rank supplier quotes and run RFQ conversations

Usage:
  rfqrank server [flags]                          Start the HTTP server
  rfqrank rank [flags] <briefing-id>              Rank a briefing's quotes
  rfqrank analyze [flags] <briefing-id> <file>    Extract a quote from a reply file
  rfqrank suppliers <import|list|reindex> [flags] Manage the supplier directory
  rfqrank status [flags]                          Show storage and index status
  rfqrank version                                 Show version
  rfqrank help                                    Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/rfqrank/config.yaml)
  --debug            Enable debug logging

Rank Flags:
  --config string    Config file path (direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to read storage directly.
  --weights string   Weight overrides for this run, e.g. total_price=4,lead_time_days=off
  --output string    text or json (default: text)

Analyze Flags:
  --config string    Config file path
  --store            Save the extracted quote under the briefing
  --output string    text or json (default: text)

Status Flags:
  --config string    Config file path (direct storage mode)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to read storage directly.
  --output string    text or json (default: text)`)
}
