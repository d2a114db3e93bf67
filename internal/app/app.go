// Package app wires the engine's components together and owns their
// lifecycle: venue adapters feed the catalog and quote store, the
// scheduler drives matching and polling, the detector emits
// opportunities, and the executor turns them into tracked positions.
package app

import (
	"context"
	"sync"

	"github.com/predarb/crossvenue-arb/internal/catalog"
	"github.com/predarb/crossvenue-arb/internal/detector"
	"github.com/predarb/crossvenue-arb/internal/executor"
	"github.com/predarb/crossvenue-arb/internal/positions"
	"github.com/predarb/crossvenue-arb/internal/quotes"
	"github.com/predarb/crossvenue-arb/internal/scheduler"
	"github.com/predarb/crossvenue-arb/internal/settlement"
	"github.com/predarb/crossvenue-arb/internal/storage"
	"github.com/predarb/crossvenue-arb/internal/venue/polymarket"
	"github.com/predarb/crossvenue-arb/pkg/config"
	"github.com/predarb/crossvenue-arb/pkg/healthprobe"
	"github.com/predarb/crossvenue-arb/pkg/httpserver"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server

	polymarketClient *polymarket.Client
	stream           *polymarket.Stream

	catalog    *catalog.Catalog
	quoteStore *quotes.Store
	detector   *detector.Detector
	tracker    *positions.Tracker
	executor   *executor.Executor
	settlement *settlement.Checker
	scheduler  *scheduler.Scheduler
	storage    storage.Storage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Options holds application options.
type Options struct {
	// DisableStream falls back to REST-only quote polling.
	DisableStream bool
}
