// Package main is the Parmesan CLI entry point.
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
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/parmesan/internal/cli"
	"github.com/hyperjump/parmesan/internal/config"
	"github.com/hyperjump/parmesan/internal/indexer"
	"github.com/hyperjump/parmesan/internal/models"
	"github.com/hyperjump/parmesan/internal/server"
	"github.com/hyperjump/parmesan/internal/storage"
	"github.com/hyperjump/parmesan/internal/watcher"
	"github.com/hyperjump/parmesan/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/parmesan/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory so "parmesan server" from a project dir uses that config.
// Returns the config and the path that was actually loaded.
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
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "collections":
		runCollections()
	case "queries":
		runQueries()
	case "define":
		runDefine()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("parmesan version %s\n", version)
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
	debug := fs.Bool("debug", false, "enable debug logging")
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

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	rebuildLemmasIfEmpty(context.Background(), components, logger)

	idx := components.Indexer
	watchOpts := []watcher.WatcherOption{}
	if debugMode {
		watchOpts = append(watchOpts, watcher.WithLogger(logger))
	}
	watchSvc := watcher.NewWatcher(
		cfg.Watch.Directories,
		cfg.Watch.Extensions,
		cfg.Watch.RecursiveOrDefault(),
		func(root, path string) {
			collection := indexer.CollectionForPath(root, path, cfg.Watch.DefaultCollection)
			if _, err := idx.IngestFile(context.Background(), path, collection); err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
			}
		},
		func(_, path string) {
			if _, err := idx.RemoveFile(context.Background(), path); err != nil {
				logger.Warn("watch remove failed", zap.String("path", path), zap.Error(err))
			}
		},
		watchOpts...,
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	srv := server.NewServer(
		components.Engine,
		components.Indexer,
		components.Storage,
		cfg,
		logger,
		server.WithLemmaIndex(components.Lemmas),
		server.WithWatcher(watchSvc),
	)
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
	watchSvc.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional
// arguments to the front so flag.Parse sees them.
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

// parseCollectionIDs parses a comma-separated list of collection IDs. Empty input means all collections.
func parseCollectionIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid collection id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// openDirect loads config and components for commands that work on local storage.
func openDirect(configPath string, debug bool) (*config.Config, *Components, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	return cfg, components, logger
}

func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: parmesan search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces and matched against sentence lemmas.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  parmesan search group
  parmesan search --collections 1,3 "fundamental group"
  parmesan search --format json monoid
`)
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	collections := fs.String("collections", "", "comma-separated collection IDs (default: all)")
	format := fs.String("format", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	ids, err := parseCollectionIDs(*collections)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	query := &models.SearchQuery{Query: queryStr, Collections: ids}

	var response *models.SearchResponse
	if *serverURL != "" {
		// The server holds the lemma index lock, so go through its API.
		response, err = searchViaHTTP(*serverURL, query)
	} else {
		_, components, logger := openDirect(*configPath, *debug)
		defer logger.Sync()
		defer components.Close()
		response, err = components.Engine.Search(context.Background(), query)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, cli.ParseOutputFormat(*format)); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, query *models.SearchQuery) (*models.SearchResponse, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimRight(serverURL, "/")+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var response models.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	collection := fs.String("collection", "", "collection name (default: first directory under the ingested directory)")
	format := fs.String("format", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: parmesan ingest [flags] <file-or-directory>...")
		os.Exit(1)
	}

	cfg, components, logger := openDirect(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	var results []*indexer.IngestResult
	failed := false
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}
		if info.IsDir() {
			res, err := components.Indexer.IngestDirectory(ctx, path, *collection, cfg.Watch.Extensions)
			results = append(results, res...)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed = true
			}
			continue
		}
		name := *collection
		if name == "" {
			name = cfg.Watch.DefaultCollection
		}
		res, err := components.Indexer.IngestFile(ctx, path, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			failed = true
			continue
		}
		results = append(results, res)
	}

	if cli.ParseOutputFormat(*format) == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, map[string]interface{}{"files": results})
	} else {
		writeIngestResults(os.Stdout, results)
	}
	if failed {
		os.Exit(1)
	}
}

func writeIngestResults(w io.Writer, results []*indexer.IngestResult) {
	for _, r := range results {
		if r.Skipped {
			fmt.Fprintf(w, "%s: unchanged\n", r.Path)
			continue
		}
		fmt.Fprintf(w, "%s -> %s: %d documents, %d sentences", r.Path, r.Collection, r.Documents, r.Sentences)
		if r.Removed > 0 {
			fmt.Fprintf(w, ", %d replaced", r.Removed)
		}
		if r.Orphans > 0 {
			fmt.Fprintf(w, ", %d orphan sentences", r.Orphans)
		}
		fmt.Fprintln(w)
	}
}

func runCollections() {
	fs := flag.NewFlagSet("collections", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	format := fs.String("format", "text", "output format: text or json")
	description := fs.String("description", "", "description for a new collection")
	priority := fs.Int("priority", 0, "display priority for a new collection (higher first)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	action := "list"
	if fs.NArg() > 0 {
		action = fs.Arg(0)
	}

	_, components, logger := openDirect(*configPath, false)
	defer logger.Sync()
	defer components.Close()
	ctx := context.Background()
	out := cli.ParseOutputFormat(*format)

	switch action {
	case "list":
		collections, err := components.Storage.ListCollections(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
			os.Exit(1)
		}
		if out == cli.OutputJSON {
			_ = cli.WriteJSON(os.Stdout, collections)
			return
		}
		cli.WriteCollections(os.Stdout, collections)
	case "create":
		if fs.NArg() < 2 {
			fmt.Println("Usage: parmesan collections create [--description text] [--priority n] <name>")
			os.Exit(1)
		}
		c := &models.Collection{Name: fs.Arg(1), Description: *description, Priority: *priority}
		if err := components.Storage.CreateCollection(ctx, c); err != nil {
			fmt.Fprintf(os.Stderr, "Create failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Collection created: %d %s\n", c.ID, c.Name)
	case "delete":
		if fs.NArg() < 2 {
			fmt.Println("Usage: parmesan collections delete <id>")
			os.Exit(1)
		}
		id, err := strconv.ParseInt(fs.Arg(1), 10, 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid collection id: %s\n", fs.Arg(1))
			os.Exit(1)
		}
		n, err := components.Indexer.RemoveCollection(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Collection deleted: %d (%d documents)\n", id, n)
	default:
		fmt.Printf("Unknown collections action: %s (use list, create or delete)\n", action)
		os.Exit(1)
	}
}

func runQueries() {
	fs := flag.NewFlagSet("queries", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 20, "number of queries")
	format := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	_, components, logger := openDirect(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	entries, err := components.Storage.TopQueries(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query log failed: %v\n", err)
		os.Exit(1)
	}
	if cli.ParseOutputFormat(*format) == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, entries)
		return
	}
	cli.WriteQueries(os.Stdout, entries)
}

func runDefine() {
	fs := flag.NewFlagSet("define", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	format := fs.String("format", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	term := buildSearchQuery(fs.Args())
	if term == "" {
		fmt.Println("Usage: parmesan define [flags] <term>")
		os.Exit(1)
	}

	_, components, logger := openDirect(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	defs := components.Engine.Define(context.Background(), term)
	if cli.ParseOutputFormat(*format) == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, map[string]interface{}{"term": term, "definitions": defs})
		return
	}
	if len(defs) == 0 {
		fmt.Printf("No definitions found for %q\n", term)
		return
	}
	cli.WriteDefinitions(os.Stdout, defs)
}

// statusResponse is the shape of the GET /api/v1/status response.
type statusResponse struct {
	Stats               *storage.Stats         `json:"stats"`
	LemmaIndexDocuments *uint64                `json:"lemma_index_documents,omitempty"`
	WatchDirectories    []string               `json:"watch_directories,omitempty"`
	DiskUsageBytes      *int64                 `json:"disk_usage_bytes,omitempty"`
	Config              map[string]interface{} `json:"config,omitempty"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = use direct storage)")
	format := fs.String("format", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status *statusResponse
	var err error
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = statusDirect(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if cli.ParseOutputFormat(*format) == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, status)
		return
	}
	writeStatus(os.Stdout, status)
}

func statusDirect(configPath string) (*statusResponse, error) {
	cfg, components, logger := openDirect(configPath, false)
	defer logger.Sync()
	defer components.Close()

	stats, err := components.Storage.Stats(context.Background())
	if err != nil {
		return nil, err
	}
	status := &statusResponse{
		Stats: stats,
		Config: map[string]interface{}{
			"database_path":    cfg.Storage.DatabasePath,
			"lemma_index_path": cfg.Storage.LemmaIndexPath,
			"regex_template":   cfg.Search.RegexTemplate,
		},
	}
	if n, err := components.Lemmas.DocCount(); err == nil {
		status.LemmaIndexDocuments = &n
	}
	if len(cfg.Watch.Directories) > 0 {
		status.WatchDirectories = cfg.Watch.Directories
	}
	if disk, err := storage.DiskUsageBytes(cfg.Storage.DatabasePath, cfg.Storage.LemmaIndexPath); err == nil {
		status.DiskUsageBytes = &disk
	}
	return status, nil
}

func statusViaHTTP(serverURL string) (*statusResponse, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var status statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &status, nil
}

func writeStatus(w io.Writer, s *statusResponse) {
	if s.Stats != nil {
		fmt.Fprintf(w, "Collections: %d\n", s.Stats.Collections)
		fmt.Fprintf(w, "Documents:   %d\n", s.Stats.Documents)
		fmt.Fprintf(w, "Sentences:   %d\n", s.Stats.Sentences)
		fmt.Fprintf(w, "Terms:       %d\n", s.Stats.Terms)
		fmt.Fprintf(w, "Definitions: %d\n", s.Stats.Definitions)
		fmt.Fprintf(w, "Queries:     %d\n", s.Stats.Queries)
	}
	if s.LemmaIndexDocuments != nil {
		fmt.Fprintf(w, "Lemma index: %d documents\n", *s.LemmaIndexDocuments)
	}
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk usage:  %s\n", formatBytes(*s.DiskUsageBytes))
	}
	for _, dir := range s.WatchDirectories {
		fmt.Fprintf(w, "Watching:    %s\n", dir)
	}
	if tmpl, ok := s.Config["regex_template"]; ok {
		fmt.Fprintf(w, "Template:    %v\n", tmpl)
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func printUsage() {
	fmt.Println(`parmesan - Lemma search over annotated corpora

Usage:
  parmesan server [flags]                  Start the HTTP server
  parmesan search [flags] <query>          Search sentence lemmas across collections
  parmesan ingest [flags] <path>...        Ingest CoNLL-U files or directories
  parmesan collections [list|create|delete] Manage collections
  parmesan queries [flags]                 Show the most frequent queries
  parmesan define [flags] <term>           Look up definitions from Wikidata and nLab
  parmesan status [flags]                  Show corpus and index status
  parmesan version                         Show version
  parmesan help                            Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/parmesan/config.yaml, or ./config.yaml when present)
  --format string    Output format: text or json (default: text)
  --debug            Enable debug logging

Search/Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --collections      Comma-separated collection IDs to search (default: all)

Ingest Flags:
  --collection       Collection name (default: derived from the directory layout)

Examples:
  parmesan server
  parmesan ingest ~/corpora
  parmesan ingest --collection algebra groups.conllu
  parmesan search "fundamental group"
  parmesan collections create --priority 5 topology
  parmesan define monoid
  parmesan status --format json`)
}
