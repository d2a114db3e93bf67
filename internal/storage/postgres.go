package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	_ "github.com/lib/pq"
	"github.com/predarb/crossvenue-arb/internal/detector"
	"github.com/predarb/crossvenue-arb/internal/positions"
	"go.uber.org/zap"
)

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresStorage creates a new PostgreSQL storage.
func NewPostgresStorage(cfg *PostgresConfig) (*PostgresStorage, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Ping()
	if err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &PostgresStorage{
		db:     db,
		logger: cfg.Logger,
	}
	err = s.ensureSchema()
	if err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return s, nil
}

// ensureSchema creates the tables on first run.
func (p *PostgresStorage) ensureSchema() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS opportunities (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			dedup_key TEXT NOT NULL,
			detected_at TIMESTAMPTZ NOT NULL,
			first_venue TEXT NOT NULL,
			first_market_id TEXT NOT NULL,
			first_side TEXT NOT NULL,
			first_price DOUBLE PRECISION NOT NULL,
			second_venue TEXT NOT NULL,
			second_market_id TEXT NOT NULL,
			second_side TEXT NOT NULL,
			second_price DOUBLE PRECISION NOT NULL,
			contracts DOUBLE PRECISION NOT NULL,
			total_cost DOUBLE PRECISION NOT NULL,
			buffer DOUBLE PRECISION NOT NULL,
			margin DOUBLE PRECISION NOT NULL,
			net_profit DOUBLE PRECISION NOT NULL,
			profit_bps DOUBLE PRECISION NOT NULL
		);
		CREATE TABLE IF NOT EXISTS positions (
			id UUID PRIMARY KEY,
			strategy TEXT NOT NULL,
			dedup_key TEXT NOT NULL,
			legs JSONB NOT NULL,
			cost DOUBLE PRECISION NOT NULL,
			expected_payout DOUBLE PRECISION NOT NULL,
			state TEXT NOT NULL,
			unhedged BOOLEAN NOT NULL DEFAULT FALSE,
			abandon_reason TEXT,
			payout DOUBLE PRECISION NOT NULL DEFAULT 0,
			pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
			opened_at TIMESTAMPTZ NOT NULL,
			settled_at TIMESTAMPTZ
		);
	`)
	return err
}

// SaveOpportunity stores a detected opportunity.
func (p *PostgresStorage) SaveOpportunity(ctx context.Context, opp *detector.Opportunity) error {
	query := `
		INSERT INTO opportunities (
			id, kind, dedup_key, detected_at,
			first_venue, first_market_id, first_side, first_price,
			second_venue, second_market_id, second_side, second_price,
			contracts, total_cost, buffer, margin, net_profit, profit_bps
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`

	_, err := p.db.ExecContext(ctx, query,
		opp.ID,
		string(opp.Kind),
		opp.DedupKey,
		opp.DetectedAt,
		string(opp.Legs[0].Venue),
		opp.Legs[0].MarketID,
		string(opp.Legs[0].Side),
		opp.Legs[0].LimitPrice,
		string(opp.Legs[1].Venue),
		opp.Legs[1].MarketID,
		string(opp.Legs[1].Side),
		opp.Legs[1].LimitPrice,
		opp.Contracts(),
		opp.TotalCost,
		opp.Buffer,
		opp.Margin,
		opp.NetProfit,
		opp.ProfitBPS,
	)

	if err != nil {
		return fmt.Errorf("insert opportunity: %w", err)
	}

	p.logger.Debug("opportunity-stored",
		zap.String("opportunity-id", opp.ID),
		zap.String("kind", string(opp.Kind)))

	return nil
}

// SavePosition upserts a position keyed by id. Legs are stored as JSONB.
func (p *PostgresStorage) SavePosition(ctx context.Context, pos positions.Position) error {
	legs, err := json.Marshal(pos.Legs)
	if err != nil {
		return fmt.Errorf("marshal legs: %w", err)
	}

	query := `
		INSERT INTO positions (
			id, strategy, dedup_key, legs, cost, expected_payout,
			state, unhedged, abandon_reason, payout, pnl, opened_at, settled_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		ON CONFLICT (id) DO UPDATE SET
			legs = EXCLUDED.legs,
			state = EXCLUDED.state,
			unhedged = EXCLUDED.unhedged,
			abandon_reason = EXCLUDED.abandon_reason,
			payout = EXCLUDED.payout,
			pnl = EXCLUDED.pnl,
			settled_at = EXCLUDED.settled_at
	`

	var settledAt sql.NullTime
	if !pos.SettledAt.IsZero() {
		settledAt = sql.NullTime{Time: pos.SettledAt, Valid: true}
	}

	_, err = p.db.ExecContext(ctx, query,
		pos.ID,
		pos.Strategy,
		pos.DedupKey,
		legs,
		pos.Cost,
		pos.ExpectedPayout,
		string(pos.State),
		pos.Unhedged,
		pos.AbandonReason,
		pos.Payout,
		pos.PnL,
		pos.OpenedAt,
		settledAt,
	)

	if err != nil {
		return fmt.Errorf("upsert position: %w", err)
	}

	p.logger.Debug("position-stored",
		zap.String("position-id", pos.ID),
		zap.String("state", string(pos.State)))

	return nil
}

// Close closes the database connection.
func (p *PostgresStorage) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}
