package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/hadith-ingest/internal/ingest"
)

// Output formats accepted by --output.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// newStatusCmd creates the 'status' subcommand.
func newStatusCmd() *cobra.Command {
	var (
		output string
		books  bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Reports stored completeness per collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			report, err := appInstance.Report(cmd.Context())
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			if !books {
				for i := range report {
					report[i].Books = nil
				}
			}
			return writeReport(cmd.OutOrStdout(), output, report)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table, json or yaml")
	cmd.Flags().BoolVar(&books, "books", false, "include per-book counts")
	return cmd
}

func writeReport(w io.Writer, format string, report []ingest.CollectionStatus) error {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(report)
	case outputTable:
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SLUG\tSTORED\tEXPECTED\tPERCENT\tCOMPLETE")
		for _, st := range report {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f%%\t%t\n", st.Slug, st.Stored, st.Expected, st.Percent, st.Complete)
			for _, b := range st.Books {
				fmt.Fprintf(tw, "  book %d %s\t%d\t\t\t%t\n", b.Number, b.Name, b.Hadiths, b.Seeded)
			}
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
