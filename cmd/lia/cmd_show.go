package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/lia/internal/store"
)

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <topic>",
		Short: "Show the record headings of a topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			topic := args[0]
			out := cmd.OutOrStdout()

			headings, err := newReadOnlyEngine(logger).ListHeadingsForTopic(cmd.Context(), topic)
			if err != nil && !errors.Is(err, store.ErrTopicNotFound) {
				return err
			}
			if len(headings) == 0 {
				fmt.Fprintf(out, "Topic '%s' does not exist.\n", topic)
				return nil
			}
			for _, h := range headings {
				fmt.Fprintln(out, h.Text)
			}
			return nil
		},
	}
}
