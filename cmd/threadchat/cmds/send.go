package cmds

import (
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSendCommand(v *viper.Viper) *cobra.Command {
	var (
		threadID string
		copyOut  bool
		raw      bool
	)
	cmd := &cobra.Command{
		Use:   "send [--thread ID] TEXT...",
		Short: "Send one message to a thread and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, v, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if strings.TrimSpace(threadID) == "" {
				threadID = uuid.NewString()
				fmt.Fprintf(cmd.ErrOrStderr(), "thread: %s\n", threadID)
			}

			reply, err := a.runner.RunTurn(ctx, threadID, strings.Join(args, " "))
			if err != nil {
				return errors.Wrapf(err, "send to thread %s", threadID)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderMarkdown(reply.Content, !raw && isTerminal(out)))

			if copyOut {
				if err := clipboard.WriteAll(reply.Content); err != nil {
					log.Warn().Err(err).Msg("could not copy reply to clipboard")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "Thread id; a new one is generated when empty")
	cmd.Flags().BoolVar(&copyOut, "copy", false, "Copy the reply to the clipboard")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the reply without markdown rendering")
	return cmd
}
