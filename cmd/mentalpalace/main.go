// Command mentalpalace runs the companion chat service or a terminal chat.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mentalpalace",
	Short: "Mental health companion chat service",
	Long: `mentalpalace serves the persona-driven companion chat over HTTP and
WebSocket, or runs a conversation directly in the terminal.

Settings are read from the environment (MODEL_PROVIDER, MEMORY_STRATEGY,
DATABASE_URL, SQLITE_PATH, ...).`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(newServeCmd(), newChatCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
