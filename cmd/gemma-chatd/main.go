// Package main is the entry point for the gemma-chatd server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "gemma-chatd",
		Short: "Conversational chatbot server backed by a Gemma completion engine",
		Long: `gemma-chatd keeps per-user conversation state alive across stateless
HTTP requests. It formats each conversation into a Gemma turn-based
prompt, sends it to an OpenAI-compatible completion backend, and
periodically reclaims idle sessions.`,
		Version: "1.0.0",
	}

	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
