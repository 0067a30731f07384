// Package main is the taisaku CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/moldworks/taisaku/internal/cli"
	"github.com/moldworks/taisaku/internal/config"
	"github.com/moldworks/taisaku/internal/embedding"
	"github.com/moldworks/taisaku/internal/export"
	"github.com/moldworks/taisaku/internal/models"
	"github.com/moldworks/taisaku/internal/search"
	"github.com/moldworks/taisaku/internal/server"
	"github.com/moldworks/taisaku/internal/store"
	"github.com/moldworks/taisaku/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/taisaku/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. A missing default config is not an error: built-in defaults
// apply, so direct commands work on a fresh machine. An explicit path that
// cannot be read is an error. Returns the config and the path actually
// loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Passphrases and API keys live in the environment; a .env next to the
	// binary is the development convenience. Absence is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "add":
		runAdd()
	case "list":
		runList()
	case "export":
		runExport()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("taisaku version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (store loads, search timing, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	// No embedder, no search subsystem: this failure is fatal at startup,
	// not something to degrade around per request.
	embedder, err := embedding.Shared(&cfg.Embedding, logger)
	if err != nil {
		logger.Fatal("Failed to initialize embedder", zap.Error(err))
	}
	defer embedder.Close()

	st := store.New(cfg.Store.Path, cfg.Store.LockTimeout(), cfg.Store.LockRetry(), logger)
	snapshot := store.NewSnapshot(st, logger)
	engine := search.NewEngine(snapshot, embedder, &cfg.Search, logger)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if cfg.Store.WatchOrDefault() {
		watchOpts := []store.Option{}
		if debugMode {
			watchOpts = append(watchOpts, store.WithLogger(logger))
		}
		w := store.NewWatcher(cfg.Store.Path, snapshot.Invalidate, watchOpts...)
		if err := w.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start store watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	if cfg.Search.WarmOnStart {
		go func() {
			if _, err := engine.Warm(watchCtx, cfg.Search.WarmBatchSize, cfg.Search.WarmConcurrency); err != nil {
				logger.Warn("corpus warm failed", zap.Error(err))
			}
		}()
	}

	srv, err := server.NewServer(engine, snapshot, st, embedder, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize server", zap.Error(err))
	}
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildSearchQuery joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the
// query to the front of the slice so that flag.Parse() sees them. Go's flag
// package stops at the first non-flag argument, so
// `taisaku search "oil leak" -top 3` would otherwise leave -top unparsed.
func searchArgsReorder(args []string) []string {
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

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: taisaku search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  taisaku search hydraulic oil leak
  taisaku search "hydraulic oil leak"               # same as above
  taisaku search --equipment "molding machine" nozzle drool
  taisaku search --top 3 --output json conveyor jam
  taisaku search --server "" mold clamp fault       # direct store, no server
`)
}

func runSearch() {
	searchArgs := searchArgsReorder(os.Args[2:])

	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = search the store directly)")
	equipmentFilter := fs.String("equipment", "", "restrict candidates to this equipment type (exact match)")
	topN := fs.Int("top", 0, "number of similar incidents to return (0 = server/config default)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgs)

	if fs.NArg() < 1 {
		printSearchUsage(fs)
		os.Exit(1)
	}
	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := cli.ParseFormat(*outputFormat)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	query := &models.SearchQuery{
		Query:     queryStr,
		Equipment: *equipmentFilter,
		TopN:      *topN,
	}

	if *serverURL != "" {
		response, err := searchViaHTTP(*serverURL, cfg, query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Direct store access (when the server is not running).
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	embedder, err := embedding.Shared(&cfg.Embedding, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize embedder: %v\n", err)
		os.Exit(1)
	}
	defer embedder.Close()

	st := store.New(cfg.Store.Path, cfg.Store.LockTimeout(), cfg.Store.LockRetry(), logger)
	engine := search.NewEngine(store.NewSnapshot(st, logger), embedder, &cfg.Search, logger)
	response, err := engine.Search(context.Background(), query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, cfg *config.Config, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(server.SystemPassphraseHeader, os.Getenv(cfg.Auth.SystemPassphraseEnv))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runAdd() {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	site := fs.String("site", "", "plant site ("+strings.Join(models.Sites(), ", ")+")")
	date := fs.String("date", time.Now().Format(models.DateLayout), "occurrence date, YYYY/MM/DD")
	machine := fs.String("machine", "", "machine ID")
	equipment := fs.String("equipment", "", "equipment type ("+strings.Join(models.EquipmentTypes(), ", ")+")")
	description := fs.String("description", "", "trouble description")
	cause := fs.String("cause", "", "root cause")
	action := fs.String("action", "", "corrective action taken")
	hours := fs.Float64("hours", 0, "response time in hours")
	responder := fs.String("responder", "", "who responded")
	process := fs.String("process", "", "investigation process")
	notes := fs.String("notes", "", "investigation notes")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rec := &models.IncidentRecord{
		Site:                 *site,
		OccurredOn:           *date,
		MachineID:            *machine,
		Equipment:            *equipment,
		Description:          *description,
		Cause:                *cause,
		CorrectiveAction:     *action,
		ResponseHours:        *hours,
		Responder:            *responder,
		InvestigationProcess: *process,
		InvestigationNotes:   *notes,
	}

	st := store.New(cfg.Store.Path, cfg.Store.LockTimeout(), cfg.Store.LockRetry(), logger)
	records, err := st.Append(context.Background(), rec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Registration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Record registered (%d records total)\n", len(records))
}

func runList() {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	equipmentFilter := fs.String("equipment", "", "restrict listing to this equipment type (exact match)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	st := store.New(cfg.Store.Path, cfg.Store.LockTimeout(), cfg.Store.LockRetry(), logger)
	records, report, err := st.Load(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		os.Exit(1)
	}
	for _, warning := range report.Warnings() {
		fmt.Fprintf(os.Stderr, "warning: %s\n", warning)
	}
	records = models.FilterByEquipment(records, *equipmentFilter)
	if err := cli.WriteRecords(os.Stdout, records, cli.ParseFormat(*outputFormat)); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	equipmentFilter := fs.String("equipment", "", "restrict export to this equipment type (exact match)")
	outPath := fs.String("out", export.FileName, "output .xlsx path")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	st := store.New(cfg.Store.Path, cfg.Store.LockTimeout(), cfg.Store.LockRetry(), logger)
	records, _, err := st.Load(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
		os.Exit(1)
	}
	records = models.FilterByEquipment(records, *equipmentFilter)

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	n, err := export.WriteExcel(f, records)
	if err != nil {
		_ = f.Close()
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to close %s: %v\n", *outPath, err)
		os.Exit(1)
	}
	fmt.Printf("Exported %d record(s) to %s\n", n, *outPath)
}

// serverStatusResponse is the shape of GET /api/v1/status.
type serverStatusResponse struct {
	Records  int         `json:"records"`
	Store    store.Stats `json:"store"`
	Warnings []string    `json:"warnings"`
	Config   struct {
		EmbeddingType       string `json:"embedding_type"`
		EmbeddingDimensions int    `json:"embedding_dimensions"`
		StorePath           string `json:"store_path"`
	} `json:"config"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = inspect the store directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var info *cli.StatusInfo
	if *serverURL != "" {
		res, err := statusViaHTTP(*serverURL, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		info = &cli.StatusInfo{
			Source:        *serverURL,
			Records:       res.Records,
			StorePath:     res.Store.Path,
			StoreExists:   res.Store.Exists,
			SizeBytes:     res.Store.SizeBytes,
			Warnings:      res.Warnings,
			EmbeddingType: res.Config.EmbeddingType,
			Dimensions:    res.Config.EmbeddingDimensions,
		}
	} else {
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		st := store.New(cfg.Store.Path, cfg.Store.LockTimeout(), cfg.Store.LockRetry(), logger)
		records, report, err := st.Load(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Load failed: %v\n", err)
			os.Exit(1)
		}
		stats, err := st.Stats()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stat failed: %v\n", err)
			os.Exit(1)
		}
		// Config values only; loading the model just to print its size
		// would make status as slow as a search.
		info = &cli.StatusInfo{
			Source:        "direct",
			Records:       len(records),
			StorePath:     stats.Path,
			StoreExists:   stats.Exists,
			SizeBytes:     stats.SizeBytes,
			Warnings:      report.Warnings(),
			EmbeddingType: cfg.Embedding.Type,
			Dimensions:    cfg.Embedding.Dimensions,
		}
	}

	if err := cli.WriteStatus(os.Stdout, info, cli.ParseFormat(*outputFormat)); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string, cfg *config.Config) (*serverStatusResponse, error) {
	req, err := http.NewRequest(http.MethodGet, serverURL+"/api/v1/status", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(server.SystemPassphraseHeader, os.Getenv(cfg.Auth.SystemPassphraseEnv))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s serverStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

func printUsage() {
	fmt.Println(`taisaku - factory trouble database with similarity search

Usage:
  taisaku server [flags]            Start the HTTP server
  taisaku search [flags] <query>    Find similar past incidents
  taisaku add [flags]               Register a new incident record
  taisaku list [flags]              List recorded incidents
  taisaku export [flags]            Export the trouble list to .xlsx
  taisaku status [flags]            Show store and embedder status
  taisaku version                   Show version
  taisaku help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/taisaku/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --config string     Config file path (for direct mode)
  --server string     Server URL (default: http://localhost:8080). Use --server "" to search the store directly.
  --equipment string  Restrict candidates to one equipment type
  --top int           Number of similar incidents to return
  --output string     Output format: text, compact, or json (default: text)

Add Flags:
  --config string  Config file path
  --site, --date, --machine, --equipment, --description, --cause,
  --action, --hours, --responder, --process, --notes
                   One flag per record field; all are required, --hours >= 0.

List/Export Flags:
  --config string     Config file path
  --equipment string  Restrict to one equipment type
  --output string     (list) text, compact, or json
  --out string        (export) output path (default: trouble_list.xlsx)

Status Flags:
  --config string  Config file path
  --server string  Server URL. Use --server "" to inspect the store directly.
  --output string  Output format: text or json (default: text)

Searching and listing go through the server when one is running; add, list,
and export always work directly against the CSV store. The server needs
TAISAKU_SYSTEM_PASSPHRASE and TAISAKU_REGISTER_PASSPHRASE in the environment
(a .env file is loaded if present).

Examples:
  taisaku server
  taisaku search "hydraulic leak at joint"
  taisaku search --equipment "molding machine" --top 3 nozzle drool
  taisaku add --site Hofu --date 2025/11/04 --machine IM-07 \
    --equipment "molding machine" --description "nozzle drool at station 2" \
    --cause "worn check ring" --action "replaced check ring" --hours 3.5 \
    --responder tanaka --process "teardown inspection" --notes "third time this year"
  taisaku list --equipment "leak tester"
  taisaku export --out /tmp/troubles.xlsx
  taisaku status --output json`)
}
