package cmd

import (
	"os"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roomchat-cli",
	Short: "Room chat server and tools",
	Long: `roomchat-cli runs the room chat server and offers tools to inspect
rooms from the command line.

Configuration is read from the environment and an optional .env file.

Use "roomchat-cli [command] --help" for more information about a command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig is swapped in tests.
var loadConfig = func() config.Provider { return config.New() }
