package cmds

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newThreadsCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "threads",
		Short: "List every thread id with stored history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ids, err := a.store.ListThreadIDs(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}
