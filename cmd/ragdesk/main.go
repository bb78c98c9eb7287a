// Package main is the ragdesk CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/hyperjump/ragdesk/internal/cli"
	"github.com/hyperjump/ragdesk/internal/config"
	"github.com/hyperjump/ragdesk/internal/queue"
	"github.com/hyperjump/ragdesk/internal/search"
	"github.com/hyperjump/ragdesk/internal/server"
	"github.com/hyperjump/ragdesk/internal/storage"
	"github.com/hyperjump/ragdesk/internal/watcher"
	"github.com/hyperjump/ragdesk/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/ragdesk/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, a config.yaml in the current
// directory takes precedence so that running from a project directory uses its config.
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
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			// No file at all: configuration comes from the environment.
			cfg, err := config.Load("")
			return cfg, "", err
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
	case "worker":
		runWorker()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "validate":
		runValidate()
	case "version", "--version", "-v":
		fmt.Printf("ragdesk version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config, builds the logger and initializes components. Any failure,
// including an invalid configuration, ends the process.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			os.Exit(1)
		}
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	runWorkerInProcess := fs.Bool("worker", true, "consume the ingest queue in this process when a queue is configured")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var srvOpts []server.Option
	srvOpts = append(srvOpts, server.WithLogger(logger))
	if cfg.Queue.URL != "" {
		conn, err := queue.Dial(ctx, cfg.Queue.URL)
		if err != nil {
			logger.Fatal("Failed to connect to ingest queue", zap.Error(err))
		}
		defer conn.Close()
		srvOpts = append(srvOpts, server.WithEnqueuer(queue.NewPublisher(conn, cfg.Queue.IngestQueue)))
		if *runWorkerInProcess {
			w := startWorker(ctx, conn, cfg, components, logger)
			defer w.Close()
		}
	}

	if cfg.Ingest.WatchDir != "" {
		inbox := watcher.NewWatcher(cfg.Ingest.WatchDir, components.Indexer, watcher.WithLogger(logger))
		if err := inbox.Start(ctx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		defer inbox.Stop()
		go func() {
			n, err := inbox.SyncExisting(ctx)
			if err != nil {
				logger.Warn("inbox sync stopped", zap.Error(err))
			}
			logger.Info("inbox synced", zap.String("root", inbox.Root()), zap.Int("files", n))
		}()
	}

	srv := server.NewServer(components.Indexer, components.Tool, components.Storage, components.Conns, cfg, srvOpts...)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func startWorker(ctx context.Context, conn *amqp.Connection, cfg *config.Config, c *Components, logger *zap.Logger) *queue.Worker {
	w := queue.NewWorker(conn, cfg.Queue.IngestQueue, c.Indexer, logger)
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start ingest worker", zap.Error(err))
	}
	return w
}

// runWorker consumes the ingest queue without serving HTTP.
func runWorker() {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	if cfg.Queue.URL == "" {
		fmt.Fprintf(os.Stderr, "No ingest queue configured (%s)\n", config.EnvQueueURL)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	conn, err := queue.Dial(ctx, cfg.Queue.URL)
	if err != nil {
		logger.Fatal("Failed to connect to ingest queue", zap.Error(err))
	}
	defer conn.Close()
	w := startWorker(ctx, conn, cfg, components, logger)
	<-ctx.Done()
	w.Close()
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = ingest directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: ragdesk ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	format := parseFormat(*outputFormat)

	if *serverURL != "" {
		res, err := ingestViaHTTP(*serverURL, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteIngestResult(os.Stdout, res, format)
		return
	}

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	info, err := os.Stat(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		n, err := components.Indexer.IngestDirectory(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ingesting directory failed after %d file(s): %v\n", n, err)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}
	res, err := components.Indexer.IngestFile(ctx, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteIngestResult(os.Stdout, res, format)
}

// printQueryUsage prints query subcommand usage.
func printQueryUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: ragdesk query [flags] <text>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  ragdesk query what is the refund policy
  ragdesk query --top-k 10 --min-score 0 "refund policy"
  ragdesk query --server "" --output json refunds     # without a running server
`)
}

// buildQuery joins all positional args with spaces so multi-word queries work the same with
// or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional arguments
// to the front so that flag.Parse sees them; the flag package stops at the first non-flag.
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

func parseFormat(s string) cli.OutputFormat {
	switch s {
	case "json":
		return cli.OutputJSON
	case "text":
		return cli.OutputText
	}
	fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", s)
	os.Exit(1)
	return ""
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = query the store directly)")
	topK := fs.Int("top-k", search.DefaultTopK, "number of neighbours to retrieve")
	minScore := fs.Float64("min-score", search.DefaultMinScore, "minimum similarity for a chunk to be returned")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printQueryUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	text := buildQuery(fs.Args())
	if text == "" {
		printQueryUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	req := search.QueryRequest{Query: text, TopK: *topK, MinScore: minScore}

	var (
		resp *search.QueryResponse
		err  error
	)
	if *serverURL != "" {
		resp, err = queryViaHTTP(*serverURL, req)
	} else {
		_, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		resp, err = components.Tool.Run(context.Background(), req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteQueryResponse(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: ragdesk delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	_, logger, components := setup(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	if err := components.Indexer.DeleteDocument(context.Background(), docID); err != nil {
		fmt.Fprintf(os.Stderr, "Deletion failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read local storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var status *statusResponse
	var err error
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		cfg, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		status, err = localStatus(context.Background(), cfg, components.Storage)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := writeStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func localStatus(ctx context.Context, cfg *config.Config, store storage.Storage) (*statusResponse, error) {
	docs, err := store.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	chunks, err := store.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	status := &statusResponse{
		Documents: docs,
		Chunks:    chunks,
		VectorStore: map[string]any{
			"type":      cfg.VectorStore.Type,
			"index":     cfg.Index.Name,
			"metric":    cfg.Index.Metric,
			"dimension": cfg.Embedding.Dimension,
		},
	}
	if usage, err := storage.MeasureDiskUsage(cfg.Storage.DatabasePath, cfg.Storage.VectorPath); err == nil {
		status.DiskUsageBytes = &usage.Total
	}
	return status, nil
}

func runValidate() {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	source := resolved
	if source == "" {
		source = "environment"
	}
	fmt.Printf("Configuration OK (%s): store=%s index=%s dimension=%d\n",
		source, cfg.VectorStore.Type, cfg.Index.Name, cfg.Embedding.Dimension)
}

func printUsage() {
	fmt.Println(`ragdesk - document ingestion and retrieval for conversational agents

Usage:
  ragdesk server [flags]            Start the HTTP server (and queue worker / inbox watcher when configured)
  ragdesk worker [flags]            Consume the ingest queue only
  ragdesk ingest [flags] <path>     Ingest a file or every supported file in a directory
  ragdesk query [flags] <text>      Run a vector query
  ragdesk delete [flags] <id>       Delete a document and its vectors
  ragdesk status [flags]            Show registry and vector store status
  ragdesk validate [flags]          Check the configuration and exit
  ragdesk version                   Show version
  ragdesk help                      Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/ragdesk/config.yaml, or ./config.yaml when present)

Server Flags:
  --debug            Enable debug logging
  --worker           Consume the ingest queue in-process when queue.url is set (default: true)

Ingest Flags:
  --server string    Upload to a running server instead of ingesting directly
  --output string    Output format: text or json (default: text)

Query Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to query the store directly.
  --top-k int        Number of neighbours to retrieve (default: 5)
  --min-score float  Minimum similarity (default: 0.1)
  --output string    Output format: text or json (default: text)

Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for local storage.
  --output string    Output format: text or json (default: text)

Examples:
  ragdesk validate
  ragdesk server
  ragdesk ingest handbook.pdf
  ragdesk ingest --server http://localhost:8080 notes.md
  ragdesk query "refund policy"
  ragdesk query --output json --min-score 0 refunds
  ragdesk delete handbook.pdf
  ragdesk status --output json`)
}
