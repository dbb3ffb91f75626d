package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "boxterm",
	Short: "Sandboxed shell sessions in containers, over HTTP and WebSocket",
	Long: `boxterm serves an authenticated HTTP API that creates disposable
containers, runs one-shot commands in them with persisted history, and bridges
interactive terminals over WebSocket.

Configuration is read from BOXTERM_* environment variables.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(hashPasswordCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
