package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/predarb/crossvenue-arb/internal/venue"
	"github.com/predarb/crossvenue-arb/internal/venue/kalshi"
	"github.com/predarb/crossvenue-arb/internal/venue/polymarket"
	"github.com/predarb/crossvenue-arb/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var listMarketsCmd = &cobra.Command{
	Use:   "list-markets",
	Short: "List open binary markets on both venues",
	Long:  `Fetches and displays open binary markets from Polymarket and Kalshi for debugging purposes.`,
	RunE:  runListMarkets,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(listMarketsCmd)
	listMarketsCmd.Flags().IntP("limit", "l", 20, "Maximum number of markets per venue")
	listMarketsCmd.Flags().StringP("venue", "v", "", "Restrict to one venue: polymarket or kalshi")
}

func runListMarkets(cmd *cobra.Command, args []string) error {
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

	limit, _ := cmd.Flags().GetInt("limit")
	venueFilter, _ := cmd.Flags().GetString("venue")

	var adapters []venue.Adapter

	if venueFilter == "" || venueFilter == "polymarket" {
		pm, err := polymarket.New(polymarket.Config{
			GammaURL:    cfg.PolymarketGammaURL,
			CLOBURL:     cfg.PolymarketCLOBURL,
			MarketLimit: limit,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("create polymarket adapter: %w", err)
		}
		defer pm.Close()
		adapters = append(adapters, pm)
	}

	if venueFilter == "" || venueFilter == "kalshi" {
		ks, err := kalshi.New(kalshi.Config{
			BaseURL:     cfg.KalshiBaseURL,
			MarketLimit: limit,
			Logger:      logger,
		})
		if err != nil {
			return fmt.Errorf("create kalshi adapter: %w", err)
		}
		adapters = append(adapters, ks)
	}

	if len(adapters) == 0 {
		return fmt.Errorf("unknown venue %q, expected polymarket or kalshi", venueFilter)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "VENUE\tID\tQUESTION\tEXPIRES\tLIQUIDITY\n")
	fmt.Fprintf(w, "-----\t--\t--------\t-------\t---------\n")

	total := 0
	for _, a := range adapters {
		markets, err := a.ListMarkets(ctx)
		if err != nil {
			return fmt.Errorf("list %s markets: %w", a.Name(), err)
		}

		for i := range markets {
			m := &markets[i]

			question := m.Question
			if len(question) > 60 {
				question = question[:57] + "..."
			}

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.0f\n",
				m.Venue, m.ID, question,
				m.ExpiresAt.Format(time.RFC3339), m.Liquidity)
		}
		total += len(markets)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d markets\n", total)

	return nil
}
