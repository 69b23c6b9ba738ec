package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/lia/internal/knowledge"
	liamcp "github.com/ajitpratap0/lia/internal/mcp"
	"github.com/ajitpratap0/lia/internal/review"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP (Model Context Protocol) server over stdio",
		Long: `Starts an MCP JSON-RPC 2.0 server that reads from stdin and writes to stdout.
All diagnostic logs go to stderr so that stdout remains exclusively MCP protocol traffic.

Tools exposed:
  ask                 answer a question from the knowledge base
  list_topics         list every topic
  show_topic          list the headings of a topic
  get_record          read one record of a topic
  list_review_groups  list review groups, most urgent first

The data directory is watched, so edited topic files are picked up without a
restart. If the similarity worker or the review database are unavailable at
startup the server still starts; the affected tool calls return MCP errors.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := newLogger()
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			records := newRecordStore(logger)
			go func() {
				if err := records.Watch(ctx); err != nil {
					logger.Error("mcp: watching data dir failed; topic files are read on every call", "error", err)
				}
			}()

			client := newWorkerClient(logger)
			if err := startScorer(ctx, client); err != nil {
				logger.Error("mcp: similarity worker unavailable; ask will fail until it runs", "error", err)
			}
			engine := knowledge.NewEngine(records, client, logger)

			var scheduler *review.Scheduler
			reviews, err := newReviewStore(logger)
			if err != nil {
				logger.Error("mcp: failed to open review store; review tools will fail", "error", err)
			} else {
				defer func() { _ = reviews.Close() }()
				scheduler = review.NewScheduler(records, reviews, logger)
			}

			srv := liamcp.NewServer(engine, scheduler, version, logger)

			// Use a standard log.Logger pointing at stderr for the mcp-go error logger.
			errLogger := log.New(os.Stderr, "mcp: ", log.LstdFlags)

			logger.Info("mcp: lia MCP server starting", "transport", "stdio")

			return mcpserver.ServeStdio(
				srv.MCPServer(),
				mcpserver.WithErrorLogger(errLogger),
			)
		},
	}

	return cmd
}
