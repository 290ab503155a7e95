package cmds

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/threadchat/pkg/conversation"
	"github.com/go-go-golems/threadchat/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

type historyMessage struct {
	Role    conversation.Role `json:"role" yaml:"role"`
	Content string            `json:"content" yaml:"content"`
	Tokens  int               `json:"tokens" yaml:"tokens"`
}

type historyExport struct {
	ThreadID     string           `json:"thread_id" yaml:"thread_id"`
	CheckpointID string           `json:"checkpoint_id,omitempty" yaml:"checkpoint_id,omitempty"`
	Encoding     string           `json:"encoding" yaml:"encoding"`
	PromptTokens int              `json:"prompt_tokens" yaml:"prompt_tokens"`
	Messages     []historyMessage `json:"messages" yaml:"messages"`
}

func newHistoryCommand(v *viper.Viper) *cobra.Command {
	var (
		threadID     string
		checkpointID string
		output       string
	)
	cmd := &cobra.Command{
		Use:   "history --thread ID",
		Short: "Print the stored history of a thread",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, v, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var h conversation.History
			if checkpointID != "" {
				h, err = a.store.LoadCheckpoint(ctx, threadID, checkpointID)
			} else {
				h, err = a.store.Load(ctx, threadID)
			}
			if err != nil {
				return err
			}

			counter, err := tokens.NewCounter(a.settings.Inference.Model, "")
			if err != nil {
				return err
			}
			counts, err := counter.CountHistory(h)
			if err != nil {
				return err
			}

			export := historyExport{
				ThreadID:     threadID,
				CheckpointID: checkpointID,
				Encoding:     counter.Encoding(),
				PromptTokens: counts.Prompt,
				Messages:     make([]historyMessage, 0, len(h)),
			}
			for i, m := range h {
				export.Messages = append(export.Messages, historyMessage{Role: m.Role, Content: m.Content, Tokens: counts.PerMessage[i]})
			}
			return writeHistory(cmd.OutOrStdout(), export, output)
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "Thread id")
	cmd.Flags().StringVar(&checkpointID, "checkpoint", "", "Print an older checkpoint instead of the latest one")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, yaml, json)")
	_ = cmd.MarkFlagRequired("thread")
	return cmd
}

func writeHistory(w io.Writer, export historyExport, output string) error {
	switch strings.ToLower(output) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(export)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(export); err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		return enc.Close()
	case "text":
		styled := isTerminal(w)
		for _, m := range export.Messages {
			fmt.Fprintf(w, "%s %s\n", roleLabel(m.Role, styled), m.Content)
		}
		meta := fmt.Sprintf("%d messages, ~%d prompt tokens (%s)", len(export.Messages), export.PromptTokens, export.Encoding)
		fmt.Fprintln(w, renderMeta(meta, styled))
		return nil
	default:
		return errors.Errorf("unknown output format %q", output)
	}
}
