package cmds

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	input "github.com/tcnksm/go-input"
)

func newChatCommand(v *viper.Viper) *cobra.Command {
	var threadID string
	cmd := &cobra.Command{
		Use:   "chat [--thread ID]",
		Short: "Interactive chat on one thread; /history prints it, /exit leaves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, v, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if strings.TrimSpace(threadID) == "" {
				threadID = uuid.NewString()
			}
			out := cmd.OutOrStdout()
			styled := isTerminal(out)
			fmt.Fprintln(out, renderMeta("thread "+threadID, styled))

			history, err := a.runner.History(ctx, threadID)
			if err != nil {
				return err
			}
			for _, m := range history {
				fmt.Fprintf(out, "%s %s\n", roleLabel(m.Role, styled), m.Content)
			}

			in := &eofReader{r: cmd.InOrStdin()}
			ui := &input.UI{Writer: out, Reader: in}
			for {
				line, err := ui.Ask(">", &input.Options{HideOrder: true})
				if err != nil {
					log.Debug().Err(err).Msg("chat input interrupted")
					return nil
				}
				line = strings.TrimSpace(line)
				switch line {
				case "":
					// go-input reports end of input as an empty answer
					if in.done() {
						return nil
					}
					continue
				case "/exit", "/quit":
					return nil
				case "/history":
					h, err := a.runner.History(ctx, threadID)
					if err != nil {
						fmt.Fprintln(out, "error:", err)
						continue
					}
					for _, m := range h {
						fmt.Fprintf(out, "%s %s\n", roleLabel(m.Role, styled), m.Content)
					}
					continue
				}

				reply, err := a.runner.RunTurn(ctx, threadID, line)
				if err != nil {
					// nothing was stored, so the user can simply retry
					fmt.Fprintln(out, "error:", err)
					continue
				}
				fmt.Fprintf(out, "%s\n%s\n", roleLabel(reply.Role, styled), renderMarkdown(reply.Content, styled))
			}
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "Thread id; a new one is generated when empty")
	return cmd
}

// eofReader remembers whether the underlying reader reached EOF. go-input
// buffers its input, so once EOF was seen no complete line is left and an
// empty answer means the input is exhausted.
type eofReader struct {
	r   io.Reader
	eof atomic.Bool
}

func (e *eofReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err == io.EOF {
		e.eof.Store(true)
	}
	return n, err
}

func (e *eofReader) done() bool { return e.eof.Load() }
