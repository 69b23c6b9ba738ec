package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/lia/internal/config"
	"github.com/ajitpratap0/lia/internal/embedder"
	"github.com/ajitpratap0/lia/internal/knowledge"
	"github.com/ajitpratap0/lia/internal/similarity"
	"github.com/ajitpratap0/lia/internal/store"
	"github.com/ajitpratap0/lia/internal/worker"
)

var (
	cfg     *config.Config
	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := &cobra.Command{
		Use:     "lia [question...]",
		Short:   "Natural language search over a markdown knowledge base",
		Long:    "lia answers questions from topic files of markdown records by semantic similarity and schedules spaced-repetition reviews of those records.",
		Version: version,
		Args:    cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if err := cfg.EnsureDirs(); err != nil {
				return fmt.Errorf("preparing directories: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args, false)
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		askCmd(),
		listCmd(),
		showCmd(),
		reviewCmd(),
		stopCmd(),
		workerCmd(),
		mcpCmd(),
		healthCmd(),
	)

	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if cfg != nil {
		_ = level.UnmarshalText([]byte(cfg.Logging.Level))
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg != nil && cfg.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func newEmbedder(logger *slog.Logger) embedder.Embedder {
	if cfg.Embedder.Provider == "openai" {
		return embedder.NewOpenAIEmbedder(
			cfg.OpenAI.BaseURL,
			cfg.OpenAI.APIKey,
			cfg.OpenAI.Model,
			cfg.Embedder.Dimension,
			logger,
		)
	}
	return embedder.NewOllamaEmbedder(
		cfg.Ollama.BaseURL,
		cfg.Ollama.Model,
		cfg.Embedder.Dimension,
		logger,
	)
}

func newRecordStore(logger *slog.Logger) *store.FileStore {
	return store.NewFileStore(cfg.Paths.DataDir, logger)
}

func newReviewStore(logger *slog.Logger) (*store.SQLiteReviewStore, error) {
	return store.NewSQLiteReviewStore(cfg.DatabasePath(), logger)
}

func newWorkerClient(logger *slog.Logger) *worker.Client {
	exe, err := os.Executable()
	if err != nil {
		logger.Warn("cannot locate lia executable, worker auto-start disabled", "error", err)
		exe = ""
	}
	return worker.NewClient(worker.ClientConfig{
		SocketPath:     cfg.SocketPath(),
		PIDPath:        cfg.PIDPath(),
		LogPath:        cfg.WorkerLogPath(),
		Executable:     exe,
		Args:           []string{"worker"},
		StartTimeout:   cfg.Worker.StartTimeout,
		StopTimeout:    cfg.Worker.StopTimeout,
		RequestTimeout: cfg.Worker.RequestTimeout,
	}, logger)
}

// startScorer launches the worker unless it already answers.
func startScorer(ctx context.Context, scorer similarity.Scorer) error {
	if scorer.IsRunning() {
		return nil
	}
	fmt.Fprintln(os.Stderr, "Loading model...")
	if err := scorer.Start(ctx); err != nil {
		return fmt.Errorf("starting similarity worker: %w", err)
	}
	return nil
}

// newReadOnlyEngine returns an engine for listing and reading records. It
// cannot answer queries.
func newReadOnlyEngine(logger *slog.Logger) *knowledge.Engine {
	return knowledge.NewEngine(newRecordStore(logger), nil, logger)
}
