package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/predarb/crossvenue-arb/internal/venue/kalshi"
	"github.com/predarb/crossvenue-arb/internal/venue/polymarket"
	"github.com/predarb/crossvenue-arb/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var balancesCmd = &cobra.Command{
	Use:   "balances",
	Short: "Check available trading balances on both venues",
	Long: `Display the available trading balance per venue:
- Polymarket: on-chain USDC balance of the funding wallet on Polygon
- Kalshi: account balance from the trade API`,
	RunE: runBalances,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(balancesCmd)
}

func runBalances(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

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

	fmt.Printf("=== Venue Balances ===\n\n")

	pm, err := polymarket.New(polymarket.Config{
		GammaURL:      cfg.PolymarketGammaURL,
		CLOBURL:       cfg.PolymarketCLOBURL,
		PrivateKey:    cfg.PolymarketPrivateKey,
		ProxyAddress:  cfg.PolymarketProxy,
		PolygonRPCURL: cfg.PolygonRPCURL,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("create polymarket adapter: %w", err)
	}
	defer pm.Close()

	pmBalance, err := pm.GetBalance(ctx)
	if err != nil {
		fmt.Printf("polymarket: unavailable (%v)\n", err)
	} else {
		fmt.Printf("polymarket: %.2f USDC\n", pmBalance)
	}

	ks, err := kalshi.New(kalshi.Config{
		BaseURL:       cfg.KalshiBaseURL,
		APIKeyID:      cfg.KalshiAPIKeyID,
		PrivateKeyPEM: cfg.KalshiPrivateKey,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("create kalshi adapter: %w", err)
	}

	ksBalance, err := ks.GetBalance(ctx)
	if err != nil {
		fmt.Printf("kalshi:     unavailable (%v)\n", err)
	} else {
		fmt.Printf("kalshi:     %.2f USD\n", ksBalance)
	}

	return nil
}
