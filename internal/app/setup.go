package app

import (
	"context"
	"fmt"
	"time"

	"github.com/predarb/crossvenue-arb/internal/catalog"
	"github.com/predarb/crossvenue-arb/internal/detector"
	"github.com/predarb/crossvenue-arb/internal/executor"
	"github.com/predarb/crossvenue-arb/internal/matcher"
	"github.com/predarb/crossvenue-arb/internal/positions"
	"github.com/predarb/crossvenue-arb/internal/quotes"
	"github.com/predarb/crossvenue-arb/internal/scheduler"
	"github.com/predarb/crossvenue-arb/internal/settlement"
	"github.com/predarb/crossvenue-arb/internal/storage"
	"github.com/predarb/crossvenue-arb/internal/venue"
	"github.com/predarb/crossvenue-arb/internal/venue/kalshi"
	"github.com/predarb/crossvenue-arb/internal/venue/polymarket"
	"github.com/predarb/crossvenue-arb/pkg/config"
	"github.com/predarb/crossvenue-arb/pkg/healthprobe"
	"github.com/predarb/crossvenue-arb/pkg/httpserver"
	"github.com/predarb/crossvenue-arb/pkg/types"
	"go.uber.org/zap"
)

// New creates a new application instance.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	healthChecker := healthprobe.New()

	polymarketClient, err := setupPolymarket(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup polymarket adapter: %w", err)
	}

	kalshiClient, err := setupKalshi(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup kalshi adapter: %w", err)
	}

	adapters := []venue.Adapter{polymarketClient, kalshiClient}

	cat := setupCatalog(cfg, logger, adapters)
	quoteStore := setupQuoteStore(cfg, logger)
	det := setupDetector(cfg, logger, quoteStore)
	tracker := setupTracker(cfg, logger)

	st, err := setupStorage(cfg, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("setup storage: %w", err)
	}

	exec := setupExecutor(cfg, logger, det, quoteStore, tracker, st, adapters)
	checker := setupSettlement(cfg, logger, cat, tracker, st)
	sched := setupScheduler(cfg, logger, cat, det, quoteStore)
	httpServer := setupHTTPServer(cfg, logger, healthChecker, tracker)

	var stream *polymarket.Stream
	if !opts.DisableStream && cfg.PolymarketWSURL != "" {
		stream = setupStream(cfg, logger, polymarketClient)
	}

	return &App{
		cfg:              cfg,
		logger:           logger,
		healthChecker:    healthChecker,
		httpServer:       httpServer,
		polymarketClient: polymarketClient,
		stream:           stream,
		catalog:          cat,
		quoteStore:       quoteStore,
		detector:         det,
		tracker:          tracker,
		executor:         exec,
		settlement:       checker,
		scheduler:        sched,
		storage:          st,
		ctx:              ctx,
		cancel:           cancel,
	}, nil
}

func setupPolymarket(cfg *config.Config, logger *zap.Logger) (*polymarket.Client, error) {
	return polymarket.New(polymarket.Config{
		GammaURL:      cfg.PolymarketGammaURL,
		CLOBURL:       cfg.PolymarketCLOBURL,
		APIKey:        cfg.PolymarketAPIKey,
		Secret:        cfg.PolymarketSecret,
		Passphrase:    cfg.PolymarketPassphrase,
		PrivateKey:    cfg.PolymarketPrivateKey,
		ProxyAddress:  cfg.PolymarketProxy,
		SignatureType: cfg.PolymarketSigType,
		PolygonRPCURL: cfg.PolygonRPCURL,
		MarketLimit:   cfg.MarketLimit,
		Logger:        logger,
	})
}

func setupKalshi(cfg *config.Config, logger *zap.Logger) (*kalshi.Client, error) {
	return kalshi.New(kalshi.Config{
		BaseURL:       cfg.KalshiBaseURL,
		APIKeyID:      cfg.KalshiAPIKeyID,
		PrivateKeyPEM: cfg.KalshiPrivateKey,
		MarketLimit:   cfg.MarketLimit,
		Logger:        logger,
	})
}

func setupStream(cfg *config.Config, logger *zap.Logger, client *polymarket.Client) *polymarket.Stream {
	return polymarket.NewStream(polymarket.StreamConfig{
		URL:                   cfg.PolymarketWSURL,
		DialTimeout:           10 * time.Second,
		PingInterval:          10 * time.Second,
		ReconnectInitialDelay: time.Second,
		ReconnectMaxDelay:     time.Minute,
		ReconnectBackoffMult:  2.0,
		QuoteBufferSize:       1000,
		Logger:                logger,
	}, client)
}

func setupCatalog(cfg *config.Config, logger *zap.Logger, adapters []venue.Adapter) *catalog.Catalog {
	return catalog.New(catalog.Config{
		RefreshInterval: cfg.CatalogRefreshInterval,
		MinLiquidity:    cfg.MinLiquidity,
		MinTimeToExpiry: cfg.MinTimeToExpiry,
		MaxTimeToExpiry: cfg.MaxTimeToExpiry,
		Logger:          logger,
	}, adapters...)
}

func setupQuoteStore(cfg *config.Config, logger *zap.Logger) *quotes.Store {
	return quotes.New(quotes.Config{
		StalenessMax: cfg.QuoteStalenessMax,
		Logger:       logger,
	})
}

func setupDetector(cfg *config.Config, logger *zap.Logger, store *quotes.Store) *detector.Detector {
	return detector.New(detector.Config{
		ProfitBuffer: cfg.ProfitBuffer,
		TakerFees: map[types.Venue]float64{
			types.VenuePolymarket: cfg.PolymarketTakerFee,
			types.VenueKalshi:     cfg.KalshiTakerFee,
		},
		MinContracts: cfg.MinTradeSize,
		MaxContracts: cfg.MaxTradeSize,
		Logger:       logger,
	}, store)
}

func setupTracker(cfg *config.Config, logger *zap.Logger) *positions.Tracker {
	return positions.NewTracker(positions.Config{
		CapitalCeiling: cfg.CapitalCeiling,
		Logger:         logger,
	})
}

func setupStorage(cfg *config.Config, logger *zap.Logger) (storage.Storage, error) {
	if cfg.StorageMode == "postgres" {
		pgStorage, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		return pgStorage, nil
	}

	return storage.NewConsoleStorage(logger), nil
}

func setupExecutor(
	cfg *config.Config,
	logger *zap.Logger,
	det *detector.Detector,
	store *quotes.Store,
	tracker *positions.Tracker,
	st storage.Storage,
	adapters []venue.Adapter,
) *executor.Executor {
	return executor.New(executor.Config{
		Mode:               executor.Mode(cfg.ExecutionMode),
		LegTimeout:         cfg.LegTimeout,
		FillInitialBackoff: cfg.FillInitialBackoff,
		FillMaxBackoff:     cfg.FillMaxBackoff,
		FillBackoffMult:    cfg.FillBackoffMult,
		Logger:             logger,
	}, det, store, tracker, st, adapters...)
}

func setupSettlement(
	cfg *config.Config,
	logger *zap.Logger,
	cat *catalog.Catalog,
	tracker *positions.Tracker,
	st storage.Storage,
) *settlement.Checker {
	return settlement.New(settlement.Config{
		Interval: cfg.SettlementInterval,
		Logger:   logger,
	}, cat, tracker, st)
}

func setupScheduler(
	cfg *config.Config,
	logger *zap.Logger,
	cat *catalog.Catalog,
	det *detector.Detector,
	store *quotes.Store,
) *scheduler.Scheduler {
	m := matcher.New(matcher.Config{
		SimilarityThreshold: cfg.SimilarityThreshold,
		ExpiryTolerance:     cfg.ExpiryTolerance,
		Logger:              logger,
	})

	return scheduler.New(scheduler.Config{
		QuotePollInterval: cfg.QuotePollInterval,
		SingleMarketLimit: cfg.SingleMarketLimit,
		Venues:            [2]types.Venue{types.VenuePolymarket, types.VenueKalshi},
		Logger:            logger,
	}, cat, m, det, store)
}

func setupHTTPServer(
	cfg *config.Config,
	logger *zap.Logger,
	healthChecker *healthprobe.HealthChecker,
	tracker *positions.Tracker,
) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: healthChecker,
		Tracker:       tracker,
	})
}
