package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	outputFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "desk",
	Short: "Trading Desk CLI - operate the earnings research engine",
	Long: `Trading Desk coordinates earnings-driven options research on a
weekly schedule, governing every paid provider call against a durable
budget ledger.

This CLI tool allows you to:
- Inspect per-service budget usage and headroom
- Review today's job statuses and trigger a job manually
- Run ad-hoc ticker analyses`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", getEnvOrDefault("TRADING_DESK_URL", "http://localhost:8080"), "Trading Desk server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json)")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
