package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "crossvenue-arb",
	Short: "Cross-venue prediction market arbitrage engine",
	Long: `Arbitrage engine for binary-outcome prediction markets across
Polymarket and Kalshi.

The engine catalogs markets on both venues, matches equivalent events,
watches quotes for two strategies (cross-venue YES/NO and same-venue
YES+NO hedges), and executes both legs concurrently with capital limits
and unwind handling for one-sided fills.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Best effort; env vars win over .env values.
		_ = godotenv.Load()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
