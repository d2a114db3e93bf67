package cmd

import (
	"fmt"

	"github.com/predarb/crossvenue-arb/internal/app"
	"github.com/predarb/crossvenue-arb/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the arbitrage engine",
	Long: `Starts the arbitrage engine, which will:
1. Catalog open binary markets on Polymarket and Kalshi
2. Match equivalent events across venues by question similarity
3. Watch quotes by websocket stream and REST polling
4. Detect cross-venue and same-venue hedging opportunities
5. Execute both legs concurrently (paper mode by default)

Set EXECUTION_MODE=live to place real orders.`,
	RunE: runEngine,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("no-stream", false, "Disable the websocket stream and rely on REST polling only")
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	noStream, _ := cmd.Flags().GetBool("no-stream")

	application, err := app.New(cfg, logger, &app.Options{
		DisableStream: noStream,
	})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
