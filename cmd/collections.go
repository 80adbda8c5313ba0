package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newCollectionsCmd creates the 'collections' subcommand.
func newCollectionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "Lists the collections known to the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLUG\tNAME\tEDITION\tSUNNAH\tEXPECTED")
			for _, e := range appInstance.Catalog().All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", e.Slug, e.NameEnglish, e.PrimaryEdition, e.SunnahSlug, e.Expected)
			}
			return tw.Flush()
		},
	}
}
