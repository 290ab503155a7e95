package cmds

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newCheckpointsCommand(v *viper.Viper) *cobra.Command {
	var (
		threadID string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "checkpoints --thread ID",
		Short: "List the stored snapshots of a thread, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), v, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			cps, err := a.store.Checkpoints(cmd.Context(), threadID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, cp := range cps {
				fmt.Fprintf(out, "%4d  %s  %3d msgs  %s\n", cp.Seq, cp.CheckpointID, cp.MessageCount, cp.CreatedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "Thread id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of checkpoints")
	_ = cmd.MarkFlagRequired("thread")
	return cmd
}
