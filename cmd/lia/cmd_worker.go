package main

import (
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/lia/internal/metrics"
	"github.com/ajitpratap0/lia/internal/similarity"
	"github.com/ajitpratap0/lia/internal/worker"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Run the similarity worker in the foreground",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			emb := newEmbedder(logger)
			m := metrics.New()
			scorer := similarity.NewEmbeddingScorer(emb, m, logger)
			defer func() { _ = scorer.Stop(cmd.Context()) }()

			srv := worker.NewServer(scorer, emb.Model(), m, logger)
			logger.Info("worker starting", "socket", cfg.SocketPath(), "model", emb.Model())
			return srv.Serve(cmd.Context(), cfg.SocketPath(), cfg.PIDPath())
		},
	}
}
