// Package cmd defines and implements the CLI commands for the hadith-ingest executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/config"
	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/ingest"
	"github.com/JakeFAU/hadith-ingest/internal/progress"
	"github.com/JakeFAU/hadith-ingest/internal/server"
)

const closeTimeout = 10 * time.Second

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands use.
// Tests inject a fake through newApp.
type App interface {
	Logger() *zap.Logger
	Catalog() *corpus.Catalog
	Run(ctx context.Context) error
	Ingest(ctx context.Context, slug string, mode ingest.SourceMode) error
	Progress() map[string]progress.Snapshot
	Report(ctx context.Context) ([]ingest.CollectionStatus, error)
	Close(ctx context.Context) error
}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "hadith-ingest",
		Short: "Ingests hadith collections into a reconciled corpus.",
		Long: `hadith-ingest fetches hadith collections from a structured JSON CDN and
from sunnah.com pages, reconciles them against what is already stored, and
reports live progress while it works.

Run "serve" for the HTTP API or "ingest <slug|all>" for a one-off job.`,
		SilenceUsage: true,

		// Builds the application after flags are parsed and before RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), closeTimeout)
				defer cancel()
				if err := appInstance.Close(ctx); err != nil {
					appInstance.Logger().Warn("application close failed", zap.Error(err))
				}
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (env HADITH_* overrides)")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCollectionsCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
