package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the similarity worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			if err := newWorkerClient(logger).Stop(cmd.Context()); err != nil {
				return fmt.Errorf("stopping similarity worker: %w", err)
			}
			return nil
		},
	}
}
