package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/lia/internal/models"
	"github.com/ajitpratap0/lia/internal/review"
)

func reviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review <topic>",
		Short: "Review the records of a topic as flashcards",
		Long: `Lists the review groups of a topic and asks which one to review. Each
record shows its heading first; press Enter to reveal the rest, or q to quit.
Finishing a group schedules its next review.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()
			topic := args[0]

			records := newRecordStore(logger)
			exists, err := records.TopicExists(ctx, topic)
			if err != nil {
				return err
			}
			if !exists {
				fmt.Fprintf(cmd.OutOrStdout(), "Topic '%s' does not exist.\n", topic)
				return nil
			}

			reviews, err := newReviewStore(logger)
			if err != nil {
				return fmt.Errorf("opening review store: %w", err)
			}
			defer func() { _ = reviews.Close() }()

			session := &reviewSession{
				scheduler: review.NewScheduler(records, reviews, logger),
				prompt:    newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()),
				out:       cmd.OutOrStdout(),
			}
			return session.run(ctx, topic)
		},
	}
}

// reviewSession drives a flashcard review of one group.
type reviewSession struct {
	scheduler *review.Scheduler
	prompt    *prompter
	out       io.Writer
}

// run lets the user pick a group of topic, then shows its records until
// the user quits or input ends.
func (s *reviewSession) run(ctx context.Context, topic string) error {
	groups, err := s.scheduler.FetchGroupsForTopic(ctx, topic)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		fmt.Fprintf(s.out, "Topic '%s' has no records to review.\n", topic)
		return nil
	}

	group, ok, err := s.chooseGroup(groups)
	if err != nil || !ok {
		return err
	}
	if err := s.scheduler.InitReviewSession(ctx, group.ID); err != nil {
		return err
	}

	for {
		record, err := s.scheduler.NextRecord(ctx)
		if err != nil && len(record.Headings) == 0 {
			return err
		}
		if err != nil {
			fmt.Fprintf(s.out, "%s  %s\n", failColor.Sprint("✘"), bold.Sprintf("Saving review progress failed: %v", err))
		}

		fmt.Fprintln(s.out)
		printSeparator(s.out)
		fmt.Fprintf(s.out, "%s  %s\n", successColor.Sprint("✔"), bold.Sprint(record.PrimaryHeading()))

		input, err := s.prompt.prompt(infoColor.Sprint("↵"))
		if errors.Is(err, io.EOF) || (err == nil && isQuit(input)) {
			fmt.Fprintln(s.out, "Quit.")
			return nil
		}
		if err != nil {
			return err
		}

		for _, h := range record.Headings[1:] {
			fmt.Fprintf(s.out, "%s  %s\n", successColor.Sprint("✔"), bold.Sprint(h))
		}
		printSeparator(s.out)
		fmt.Fprintln(s.out)
		fmt.Fprintln(s.out, record.Body)
	}
}

// chooseGroup lists groups and returns the one picked. ok is false when the
// user quits.
func (s *reviewSession) chooseGroup(groups []models.ReviewGroup) (models.ReviewGroup, bool, error) {
	fmt.Fprintf(s.out, "%s  %s\n", infoColor.Sprint("◎"), bold.Sprint("Available groups for review:"))
	for i, g := range groups {
		fmt.Fprintf(s.out, "  - [%s] - %s\n", reviewsColor(g.ReviewsCount).Sprint(i+1), formatGroup(g))
	}

	label := bold.Sprintf("Your choice [1-%d]:", len(groups))
	for {
		input, err := s.prompt.prompt(label)
		if errors.Is(err, io.EOF) {
			return models.ReviewGroup{}, false, nil
		}
		if err != nil {
			return models.ReviewGroup{}, false, err
		}
		if isQuit(input) {
			return models.ReviewGroup{}, false, nil
		}
		if n, convErr := strconv.Atoi(input); convErr == nil && n >= 1 && n <= len(groups) {
			return groups[n-1], true, nil
		}
		fmt.Fprintln(s.out, "Invalid group id. Please try again.")
	}
}
