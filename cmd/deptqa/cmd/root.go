// Package cmd provides the CLI commands for the department Q&A service.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/northbound/deptqa/internal/blobstore"
	"github.com/northbound/deptqa/internal/chat"
	"github.com/northbound/deptqa/internal/config"
	"github.com/northbound/deptqa/internal/docsvc"
	"github.com/northbound/deptqa/internal/embedding"
	"github.com/northbound/deptqa/internal/ingest"
	"github.com/northbound/deptqa/internal/llmclient"
	"github.com/northbound/deptqa/internal/logging"
	"github.com/northbound/deptqa/internal/routing"
	"github.com/northbound/deptqa/internal/storage"
	"github.com/northbound/deptqa/internal/vectorindex"
)

var (
	debugMode   bool
	configPath  string
	app         *appContext
)

// appContext wires together every package's service, built once per CLI
// invocation from the loaded configuration.
type appContext struct {
	cfg      *config.Config
	store    *storage.Store
	blobs    *blobstore.Store
	index    vectorindex.Index
	embedder embedding.Provider
	llm      llmclient.Provider
	docs     *docsvc.Service
	chatSvc  *chat.Service
	sessions *chat.SessionManager
	logger   *slog.Logger
}

// NewRootCmd creates the root command for the deptqa CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deptqa",
		Short: "Department-scoped document Q&A service",
		Long: `deptqa ingests department documents, indexes them for semantic search,
and answers employee questions with citations back to the source material.

It runs entirely on a local Ollama-compatible embeddings and chat endpoint,
with a SQLite catalog and an on-disk HNSW vector index.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&configPath, "config-dir", ".", "directory to look for .deptqa.yaml in")

	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		return bootstrap(c.Context())
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newReindexAllCmd())
	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newIndexInfoCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// bootstrap loads config, opens storage/index, and wires every service —
// run once via PersistentPreRunE before any subcommand body. It also
// starts a background watcher on the config directory so a running
// process picks up a changed logging.level without a restart.
func bootstrap(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logLevel := cfg.Logging.Level
	if debugMode {
		logLevel = "debug"
	}
	logger, level, _, err := logging.Setup(logging.Config{
		Level:         logLevel,
		FilePath:      cfg.Logging.Path,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	slog.SetDefault(logger)

	go func() {
		if err := config.WatchForChanges(ctx, configPath, level, logger); err != nil {
			logger.Warn("config watcher stopped", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := storage.Open(cfg.Storage.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	blobs, err := blobstore.New(cfg.Storage.BlobRoot)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	idx, err := vectorindex.Open(cfg.Index.Path, vectorindex.Config{
		Dimensions: cfg.Index.Dimensions,
		M:          cfg.Index.M,
		EfSearch:   cfg.Index.EfSearch,
	}, logger)
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}

	embedder := embedding.NewCachedProvider(embedding.NewOllamaProvider(embedding.OllamaConfig{
		Host:       cfg.Embeddings.OllamaHost,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		BatchSize:  cfg.Embeddings.BatchSize,
	}), cfg.Embeddings.CacheSize)

	llm := llmclient.New(llmclient.Config{
		Host:        cfg.LLM.Host,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLMTimeout(),
	})

	ingester := ingest.New(store, idx, embedder, logger)
	router := routing.New(llm, logger)

	app = &appContext{
		cfg:      cfg,
		store:    store,
		blobs:    blobs,
		index:    idx,
		embedder: embedder,
		llm:      llm,
		docs:     docsvc.New(store, blobs, idx, ingester, embedder, logger),
		chatSvc:  chat.New(store, idx, embedder, llm, router, logger),
		sessions: chat.NewSessionManager(store),
		logger:   logger,
	}
	return nil
}
