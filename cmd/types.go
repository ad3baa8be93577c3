package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newTypesCmd creates the 'types' subcommand.
func newTypesCmd(st *state) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the entity types and their collection endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tENDPOINT\tPRUNE\tFETCHERS")
			for _, t := range st.app.Registry().Types() {
				endpoint := t.ListEndpoint
				if endpoint == "" {
					endpoint = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%d\n", t.Name, endpoint, t.Prune, len(t.Fetchers))
			}
			if err := w.Flush(); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		},
	}
}
