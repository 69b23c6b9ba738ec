package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func healthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the data directory, review database, worker and embedder",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			allOK := true

			// Check the knowledge base
			topics, err := newRecordStore(logger).Topics(ctx)
			if err != nil {
				fmt.Fprintf(out, "Data dir: FAIL (%v)\n", err)
				allOK = false
			} else {
				fmt.Fprintf(out, "Data dir: OK (%d topics in %s)\n", len(topics), cfg.Paths.DataDir)
			}

			// Check the review database
			reviews, err := newReviewStore(logger)
			if err != nil {
				fmt.Fprintf(out, "Review DB: FAIL (%v)\n", err)
				allOK = false
			} else {
				groups, err := reviews.AllGroups(ctx)
				_ = reviews.Close()
				if err != nil {
					fmt.Fprintf(out, "Review DB: FAIL (%v)\n", err)
					allOK = false
				} else {
					fmt.Fprintf(out, "Review DB: OK (%d groups)\n", len(groups))
				}
			}

			// The worker is started on demand, so not running is not a failure.
			if h, err := newWorkerClient(logger).Health(ctx); err != nil {
				fmt.Fprintln(out, "Worker: not running")
			} else {
				fmt.Fprintf(out, "Worker: OK (pid %d, model %s)\n", h.PID, h.Model)
			}

			// Check the embedder
			emb := newEmbedder(logger)
			if _, err := emb.Embed(ctx, "health check"); err != nil {
				fmt.Fprintf(out, "Embedder (%s): FAIL (%v)\n", cfg.Embedder.Provider, err)
				allOK = false
			} else {
				fmt.Fprintf(out, "Embedder (%s): OK (model %s)\n", cfg.Embedder.Provider, emb.Model())
			}

			if !allOK {
				return fmt.Errorf("one or more health checks failed")
			}
			return nil
		},
	}
}
