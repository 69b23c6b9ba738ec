package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/lia/internal/review"
)

func listCmd() *cobra.Command {
	var (
		topics       bool
		reviewGroups bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List topics or review groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if topics {
				names, err := newReadOnlyEngine(logger).ListTopics(ctx)
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Fprintln(out, name)
				}
				return nil
			}

			reviews, err := newReviewStore(logger)
			if err != nil {
				return fmt.Errorf("opening review store: %w", err)
			}
			defer func() { _ = reviews.Close() }()

			scheduler := review.NewScheduler(newRecordStore(logger), reviews, logger)
			groups, err := scheduler.FetchGroupsToReview(ctx)
			if err != nil {
				return err
			}
			for i, g := range groups {
				fmt.Fprintf(out, "%d - %s\n", i+1, formatGroup(g))
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&topics, "topics", "t", false, "list topics")
	cmd.Flags().BoolVarP(&reviewGroups, "review-groups", "r", false, "list review groups, most urgent first")
	cmd.MarkFlagsMutuallyExclusive("topics", "review-groups")
	cmd.MarkFlagsOneRequired("topics", "review-groups")
	return cmd
}
