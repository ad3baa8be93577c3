package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newShowCmd creates the 'show' subcommand.
func newShowCmd(st *state) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "show <kind> <identity>",
		Short: "Print one cached entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, identity := args[0], args[1]
			e, found, err := st.app.Crawler().Get(cmd.Context(), kind, identity, refresh)
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("%s %q not found", kind, identity)
			}
			return writeIndented(cmd, e)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reconcile the collection when the entity is not cached")
	return cmd
}
