package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel string
	HTTPPort string

	// Polymarket venue
	PolymarketGammaURL   string
	PolymarketCLOBURL    string
	PolymarketWSURL      string
	PolymarketAPIKey     string
	PolymarketSecret     string
	PolymarketPassphrase string
	PolymarketPrivateKey string
	PolymarketProxy      string
	PolymarketSigType    int
	PolygonRPCURL        string

	// Kalshi venue
	KalshiBaseURL    string
	KalshiAPIKeyID   string
	KalshiPrivateKey string // PEM-encoded RSA key

	// Market catalog
	CatalogRefreshInterval time.Duration
	MarketLimit            int
	MinLiquidity           float64
	MaxTimeToExpiry        time.Duration
	MinTimeToExpiry        time.Duration

	// Event matching
	SimilarityThreshold float64
	ExpiryTolerance     time.Duration

	// Quotes
	QuotePollInterval time.Duration
	QuoteStalenessMax time.Duration
	SingleMarketLimit int

	// Detection
	ProfitBuffer       float64
	PolymarketTakerFee float64
	KalshiTakerFee     float64
	MinTradeSize       float64
	MaxTradeSize       float64

	// Execution
	ExecutionMode      string // "paper" or "live"
	LegTimeout         time.Duration
	FillInitialBackoff time.Duration
	FillMaxBackoff     time.Duration
	FillBackoffMult    float64

	// Positions
	CapitalCeiling float64

	// Settlement
	SettlementInterval time.Duration

	// Storage
	StorageMode  string // "postgres" or "console"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		// Application defaults
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),
		HTTPPort: getEnvOrDefault("HTTP_PORT", "8080"),

		// Polymarket defaults
		PolymarketGammaURL:   getEnvOrDefault("POLYMARKET_GAMMA_API_URL", "https://gamma-api.polymarket.com"),
		PolymarketCLOBURL:    getEnvOrDefault("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		PolymarketWSURL:      getEnvOrDefault("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws/market"),
		PolymarketAPIKey:     os.Getenv("POLYMARKET_API_KEY"),
		PolymarketSecret:     os.Getenv("POLYMARKET_SECRET"),
		PolymarketPassphrase: os.Getenv("POLYMARKET_PASSPHRASE"),
		PolymarketPrivateKey: os.Getenv("POLYMARKET_PRIVATE_KEY"),
		PolymarketProxy:      os.Getenv("POLYMARKET_PROXY_ADDRESS"),
		PolymarketSigType:    getIntOrDefault("POLYMARKET_SIGNATURE_TYPE", 0),
		PolygonRPCURL:        getEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),

		// Kalshi defaults
		KalshiBaseURL:    getEnvOrDefault("KALSHI_BASE_URL", "https://api.elections.kalshi.com/trade-api/v2"),
		KalshiAPIKeyID:   os.Getenv("KALSHI_API_KEY_ID"),
		KalshiPrivateKey: os.Getenv("KALSHI_PRIVATE_KEY"),

		// Catalog defaults
		CatalogRefreshInterval: getDurationOrDefault("CATALOG_REFRESH_INTERVAL", 30*time.Second),
		MarketLimit:            getIntOrDefault("MARKET_LIMIT", 200),
		MinLiquidity:           getFloat64OrDefault("MIN_LIQUIDITY", 100.0),
		MaxTimeToExpiry:        getDurationOrDefault("MAX_TIME_TO_EXPIRY", 24*time.Hour),
		MinTimeToExpiry:        getDurationOrDefault("MIN_TIME_TO_EXPIRY", 5*time.Minute),

		// Matching defaults
		SimilarityThreshold: getFloat64OrDefault("SIMILARITY_THRESHOLD", 0.80),
		ExpiryTolerance:     getDurationOrDefault("EXPIRY_TOLERANCE", 5*time.Minute),

		// Quote defaults
		QuotePollInterval: getDurationOrDefault("QUOTE_POLL_INTERVAL", 2*time.Second),
		QuoteStalenessMax: getDurationOrDefault("QUOTE_STALENESS_MAX", 10*time.Second),
		SingleMarketLimit: getIntOrDefault("SINGLE_MARKET_LIMIT", 50),

		// Detection defaults
		ProfitBuffer:       getFloat64OrDefault("PROFIT_BUFFER", 0.02),
		PolymarketTakerFee: getFloat64OrDefault("POLYMARKET_TAKER_FEE", 0.0),
		KalshiTakerFee:     getFloat64OrDefault("KALSHI_TAKER_FEE", 0.01),
		MinTradeSize:       getFloat64OrDefault("MIN_TRADE_SIZE", 10.0),
		MaxTradeSize:       getFloat64OrDefault("MAX_TRADE_SIZE", 500.0),

		// Execution defaults
		ExecutionMode:      getEnvOrDefault("EXECUTION_MODE", "paper"),
		LegTimeout:         getDurationOrDefault("LEG_TIMEOUT", 15*time.Second),
		FillInitialBackoff: getDurationOrDefault("FILL_INITIAL_BACKOFF", 200*time.Millisecond),
		FillMaxBackoff:     getDurationOrDefault("FILL_MAX_BACKOFF", 2*time.Second),
		FillBackoffMult:    getFloat64OrDefault("FILL_BACKOFF_MULTIPLIER", 2.0),

		// Position defaults
		CapitalCeiling: getFloat64OrDefault("CAPITAL_CEILING", 2000.0),

		// Settlement defaults
		SettlementInterval: getDurationOrDefault("SETTLEMENT_INTERVAL", 5*time.Minute),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "crossvenue"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "crossvenue123"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "crossvenue_arb"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1.0 {
		return fmt.Errorf("SIMILARITY_THRESHOLD must be in (0, 1.0], got %f", c.SimilarityThreshold)
	}

	if c.ProfitBuffer < 0 || c.ProfitBuffer >= 1.0 {
		return fmt.Errorf("PROFIT_BUFFER must be in [0, 1.0), got %f", c.ProfitBuffer)
	}

	if c.CapitalCeiling <= 0 {
		return fmt.Errorf("CAPITAL_CEILING must be positive, got %f", c.CapitalCeiling)
	}

	if c.QuoteStalenessMax <= 0 {
		return fmt.Errorf("QUOTE_STALENESS_MAX must be positive, got %s", c.QuoteStalenessMax)
	}

	if c.LegTimeout <= 0 {
		return fmt.Errorf("LEG_TIMEOUT must be positive, got %s", c.LegTimeout)
	}

	if c.ExecutionMode != "paper" && c.ExecutionMode != "live" {
		return fmt.Errorf("EXECUTION_MODE must be 'paper' or 'live', got %q", c.ExecutionMode)
	}

	if c.MinTradeSize <= 0 || c.MaxTradeSize < c.MinTradeSize {
		return fmt.Errorf("invalid trade size bounds: min=%f max=%f", c.MinTradeSize, c.MaxTradeSize)
	}

	return nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}
