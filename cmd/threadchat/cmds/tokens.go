package cmds

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/threadchat/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newTokensCommand(v *viper.Viper) *cobra.Command {
	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Commands related to tokens",
	}

	var encoding string
	countCmd := &cobra.Command{
		Use:   "count [TEXT...]",
		Short: "Count tokens of the arguments, or of stdin when none are given",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if len(args) == 0 {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return errors.Wrap(err, "error reading input")
				}
				text = string(b)
			}
			model := v.GetString("inference.model")
			if encoding != "" {
				model = ""
			}
			counter, err := tokens.NewCounter(model, encoding)
			if err != nil {
				return err
			}
			n, err := counter.Count(text)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model: %s\n", model)
			fmt.Fprintf(out, "Codec: %s\n", counter.Encoding())
			fmt.Fprintf(out, "Total tokens: %d\n", n)
			return nil
		},
	}
	countCmd.Flags().StringVar(&encoding, "codec", "", "Codec used for encoding (default cl100k_base)")
	tokensCmd.AddCommand(countCmd)
	return tokensCmd
}
