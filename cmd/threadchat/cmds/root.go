package cmds

import (
	"os"

	"github.com/go-go-golems/threadchat/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"store":         "store.backend",
	"db":            "store.sqlite-path",
	"redis-addr":    "store.redis-addr",
	"provider":      "inference.provider",
	"model":         "inference.model",
	"base-url":      "inference.base-url",
	"timeout":       "inference.timeout",
	"retries":       "inference.retries",
	"system-prompt": "inference.system-prompt",
	"events":        "events.backend",
	"events-redis":  "events.redis-addr",
}

func NewRootCommand() (*cobra.Command, error) {
	v := config.NewViper()

	rootCmd := &cobra.Command{
		Use:           "threadchat",
		Short:         "threadchat runs resumable chat threads against a hosted LLM",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// reinitialize the logger now that --log-level and co are parsed
			level, _ := cmd.Flags().GetString("log-level")
			format, _ := cmd.Flags().GetString("log-format")
			if err := initLogger(level, format, os.Stderr); err != nil {
				return err
			}
			envFile, _ := cmd.Flags().GetString("env-file")
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
				v.SetConfigFile(cfgFile)
			}
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a config file (default $HOME/.threadchat/config.yaml or ./config.yaml)")
	pf.String("env-file", ".env", "Environment file merged into the process environment")
	pf.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.String("log-format", "auto", "Log format (auto, text, json)")

	pf.String("store", v.GetString("store.backend"), "Thread store backend (sqlite, redis, memory)")
	pf.String("db", v.GetString("store.sqlite-path"), "SQLite database file")
	pf.String("redis-addr", v.GetString("store.redis-addr"), "Redis address for the redis store")
	pf.String("provider", v.GetString("inference.provider"), "Inference provider (openai, echo)")
	pf.String("model", v.GetString("inference.model"), "Model name")
	pf.String("base-url", v.GetString("inference.base-url"), "OpenAI-compatible API base URL")
	pf.Duration("timeout", v.GetDuration("inference.timeout"), "Per-request model timeout, 0 disables")
	pf.Uint("retries", v.GetUint("inference.retries"), "Attempts per model request; transient failures only")
	pf.String("system-prompt", "", "System prompt sent with every request, never stored")
	pf.String("events", v.GetString("events.backend"), "Turn event bus (none, gochannel, redis)")
	pf.String("events-redis", v.GetString("events.redis-addr"), "Redis address for the redis event bus")

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, pf.Lookup(flag)); err != nil {
			return nil, errors.Wrapf(err, "bind flag %s", flag)
		}
	}

	rootCmd.AddCommand(
		newSendCommand(v),
		newThreadsCommand(v),
		newHistoryCommand(v),
		newCheckpointsCommand(v),
		newChatCommand(v),
		newServeCommand(v),
		newWatchCommand(v),
		newTokensCommand(v),
	)
	return rootCmd, nil
}

// loadSettings is the single startup configuration read of a command.
func loadSettings(v *viper.Viper, needCredential bool) (*config.Settings, error) {
	if needCredential {
		return config.Load(v)
	}
	return config.Load(v, config.WithoutCredential())
}
