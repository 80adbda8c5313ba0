package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serves the ingestion API",
		Long: `Starts the HTTP API and the ingestion worker pool. Jobs are triggered
with POST /v1/ingest/{slug} and observed through /v1/progress/stream.
The server drains in-flight jobs on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := appInstance.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
