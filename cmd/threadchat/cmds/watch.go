package cmds

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-go-golems/threadchat/pkg/config"
	"github.com/go-go-golems/threadchat/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newWatchCommand(v *viper.Viper) *cobra.Command {
	var threadID string
	cmd := &cobra.Command{
		Use:   "watch [--thread ID]",
		Short: "Print turn events as JSON lines; needs the redis event bus to see other processes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			settings, err := config.Load(v, config.WithoutCredential())
			if err != nil {
				return err
			}
			if settings.Events.Backend != events.BackendRedis {
				log.Warn().Str("backend", settings.Events.Backend).Msg("only the redis event bus carries events between processes")
			}
			bus, err := events.NewBus(settings.Events)
			if err != nil {
				return err
			}
			if bus == nil {
				return errors.New("event bus is disabled")
			}
			defer func() { _ = bus.Close() }()

			ch, err := bus.Subscribe(ctx, threadID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for e := range ch {
				if err := enc.Encode(e); err != nil {
					return errors.Wrap(err, "write event")
				}
			}
			if ctx.Err() == nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "event stream closed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "Only show events of this thread")
	return cmd
}
