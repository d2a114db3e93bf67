package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	json "github.com/goccy/go-json"
	"github.com/predarb/crossvenue-arb/internal/positions"
	"github.com/predarb/crossvenue-arb/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var positionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "Display tracked positions from a running engine",
	Long: `Queries the positions API of a running engine instance and displays
each position's strategy, state, cost, and P&L, plus aggregate
statistics.

Examples:
  # Show all positions
  crossvenue-arb positions

  # Show only non-terminal positions
  crossvenue-arb positions --active-only

  # Export to JSON
  crossvenue-arb positions --format json > positions.json`,
	RunE: runPositions,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(positionsCmd)
	positionsCmd.Flags().Bool("active-only", false, "Show only non-terminal positions")
	positionsCmd.Flags().String("format", "table", "Output format: table, json")
	positionsCmd.Flags().String("addr", "", "Engine address (default http://localhost:$HTTP_PORT)")
}

func runPositions(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	activeOnly, _ := cmd.Flags().GetBool("active-only")
	format, _ := cmd.Flags().GetString("format")
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = "http://localhost:" + cfg.HTTPPort
	}

	requestURL := addr + "/api/positions"
	if activeOnly {
		requestURL += "?active=true"
	}

	client := &http.Client{Timeout: 10 * time.Second}
	body, err := fetchJSON(client, requestURL)
	if err != nil {
		return fmt.Errorf("fetch positions (is the engine running?): %w", err)
	}

	var resp struct {
		Count     int                  `json:"count"`
		Positions []positions.Position `json:"positions"`
	}
	err = json.Unmarshal(body, &resp)
	if err != nil {
		return fmt.Errorf("parse positions: %w", err)
	}

	if format == "json" {
		os.Stdout.Write(body)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tSTRATEGY\tSTATE\tCOST\tPAYOUT\tPNL\tUNHEDGED\tOPENED\n")
	fmt.Fprintf(w, "--\t--------\t-----\t----\t------\t---\t--------\t------\n")

	for i := range resp.Positions {
		p := &resp.Positions[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%+.2f\t%v\t%s\n",
			shortID(p.ID), p.Strategy, p.State,
			p.Cost, p.Payout, p.PnL, p.Unhedged,
			p.OpenedAt.Format(time.RFC3339))
	}
	w.Flush()

	statsBody, err := fetchJSON(client, addr+"/api/stats")
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}

	var stats positions.Statistics
	err = json.Unmarshal(statsBody, &stats)
	if err != nil {
		return fmt.Errorf("parse stats: %w", err)
	}

	fmt.Printf("\nTotal: %d  open: %d  awaiting: %d  settled: %d  abandoned: %d  unhedged: %d\n",
		resp.Count, stats.Open, stats.AwaitingSettlement, stats.Settled, stats.Abandoned, stats.Unhedged)
	fmt.Printf("Committed: %.2f  Realized P&L: %+.2f\n", stats.Committed, stats.RealizedPnL)

	return nil
}

func fetchJSON(client *http.Client, requestURL string) ([]byte, error) {
	resp, err := client.Get(requestURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
