package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/ingest"
	"github.com/JakeFAU/hadith-ingest/internal/progress"
)

// newIngestCmd creates the 'ingest' subcommand.
func newIngestCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "ingest <slug|all>",
		Short: "Runs one ingestion job in the foreground",
		Long: `Fetches, reconciles and stores one collection, or every catalog
collection when the argument is "all". The command blocks until the job
finishes and prints a per-collection summary.

--source picks the upstream: cdn, sunnah, or auto (CDN first, sunnah.com
pages when the CDN edition is empty). Without it ingest.source applies.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngestCommand(cmd, args[0], source)
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "upstream source: auto, cdn or sunnah")
	return cmd
}

func runIngestCommand(cmd *cobra.Command, slug, source string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	mode, err := ingest.ParseSourceMode(source)
	if err != nil {
		return err
	}
	if slug != corpus.AllCollections {
		if _, ok := appInstance.Catalog().Lookup(slug); !ok {
			return fmt.Errorf("unknown collection %q (see 'collections')", slug)
		}
	}

	runErr := appInstance.Ingest(cmd.Context(), slug, mode)
	printSummaries(cmd.OutOrStdout(), appInstance.Progress())
	if runErr != nil {
		return fmt.Errorf("ingest %s: %w", slug, runErr)
	}
	appInstance.Logger().Info("Ingest command finished.", zap.String("collection", slug))
	return nil
}

func printSummaries(w io.Writer, snaps map[string]progress.Snapshot) {
	slugs := make([]string, 0, len(snaps))
	for slug := range snaps {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	for _, slug := range slugs {
		s := snaps[slug]
		fmt.Fprintf(w, "%-20s %-8s sections=%d books=%d candidates=%d inserted=%d updated=%d warnings=%d\n",
			slug, s.Phase, s.SectionsDone, s.BooksProcessed, s.HadithsTotal, s.HadithsInserted, s.HadithsUpdated, s.WarningCount)
		if s.Error != "" {
			fmt.Fprintf(w, "%-20s error: %s\n", "", s.Error)
		}
	}
}
