package storage

import (
	"context"
	"fmt"

	"github.com/predarb/crossvenue-arb/internal/detector"
	"github.com/predarb/crossvenue-arb/internal/positions"
	"go.uber.org/zap"
)

// ConsoleStorage implements Storage by pretty-printing to console.
type ConsoleStorage struct {
	logger *zap.Logger
}

// NewConsoleStorage creates a new console storage.
func NewConsoleStorage(logger *zap.Logger) *ConsoleStorage {
	logger.Info("console-storage-initialized")
	return &ConsoleStorage{
		logger: logger,
	}
}

// SaveOpportunity pretty-prints a detected opportunity to console.
func (c *ConsoleStorage) SaveOpportunity(ctx context.Context, opp *detector.Opportunity) error {
	fmt.Println("\n" + "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("🎯 OPPORTUNITY DETECTED (%s)\n", opp.Kind)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("ID:       %s\n", opp.ID[:8])
	fmt.Printf("Time:     %s\n", opp.DetectedAt.Format("2006-01-02 15:04:05"))
	for i, leg := range opp.Legs {
		fmt.Printf("Leg %d:    %s %s %s @ %.4f x %.1f\n",
			i+1, leg.Venue, leg.MarketID, leg.Side, leg.LimitPrice, leg.Contracts)
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("💰 PROFIT ANALYSIS\n")
	fmt.Printf("  Pair Cost:      %.4f (buffer: %.4f)\n", opp.TotalCost, opp.Buffer)
	fmt.Printf("  Margin:         %.4f (%.0f bps)\n", opp.Margin, opp.ProfitBPS)
	fmt.Printf("  Net Profit:     $%.2f over %.1f contracts\n", opp.NetProfit, opp.Contracts())
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	return nil
}

// SavePosition pretty-prints a position transition to console.
func (c *ConsoleStorage) SavePosition(ctx context.Context, pos positions.Position) error {
	fmt.Printf("\n📌 POSITION %s [%s] strategy=%s cost=$%.2f payout=$%.2f pnl=$%.2f unhedged=%v\n",
		pos.ID[:8], pos.State, pos.Strategy, pos.Cost, pos.Payout, pos.PnL, pos.Unhedged)
	for i, leg := range pos.Legs {
		fmt.Printf("  leg %d: %s %s %s %.1f@%.4f [%s]\n",
			i+1, leg.Venue, leg.MarketID, leg.Side, leg.FilledContracts, leg.AvgFillPrice, leg.State)
	}
	return nil
}

// Close is a no-op for console storage.
func (c *ConsoleStorage) Close() error {
	c.logger.Info("closing-console-storage")
	return nil
}
