package main

import (
	"os"

	"github.com/go-go-golems/threadchat/cmd/threadchat/cmds"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd, err := cmds.NewRootCommand()
	cobra.CheckErr(err)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
