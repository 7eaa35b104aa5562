// Mlinzi — consent-gated 1Password credential broker for AI assistants.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mlinzi",
	Short: "Mlinzi — consent-gated 1Password credential broker for AI assistants.",
	Long: `Mlinzi fronts the 1Password CLI as an MCP server over stdio. Assistants can
browse vault and item listings freely, but secret values stay redacted until
a human pastes an open-item link copied from the 1Password app — per-item,
per-session consent that is never persisted.`,
	RunE:          runServe, // Default to serve mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, auditCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
