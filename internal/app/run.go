package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.Float64("profit-buffer", a.cfg.ProfitBuffer),
		zap.Float64("capital-ceiling", a.cfg.CapitalCeiling),
		zap.String("log-level", a.cfg.LogLevel))

	err := a.startComponents()
	if err != nil {
		return err
	}

	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.Bool("stream-enabled", a.stream != nil))

	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	// Start HTTP server
	a.wg.Add(1)
	go a.runHTTPServer()

	// Detector and executor consume channels, so they start before
	// producers.
	a.detector.Start(a.ctx)
	a.executor.Start(a.ctx)
	a.settlement.Start(a.ctx)

	// Start catalog refresh loop
	a.wg.Add(1)
	go a.runCatalog()

	// Start scheduler (matching + quote polling)
	a.scheduler.Start(a.ctx)

	// Start websocket stream and its bridge into the quote store
	if a.stream != nil {
		err := a.stream.Start()
		if err != nil {
			return fmt.Errorf("start market stream: %w", err)
		}

		a.wg.Add(2)
		go a.bridgeStreamQuotes()
		go a.maintainStreamSubscriptions()
	}

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runCatalog() {
	defer a.wg.Done()
	err := a.catalog.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("catalog-error", zap.Error(err))
	}
}

// bridgeStreamQuotes feeds streamed book updates into the quote store,
// where the detector picks them up alongside polled quotes.
func (a *App) bridgeStreamQuotes() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			return
		case q, ok := <-a.stream.Quotes():
			if !ok {
				return
			}
			a.quoteStore.Update(q)
		}
	}
}

// maintainStreamSubscriptions keeps the websocket subscribed to the CLOB
// tokens of every cataloged Polymarket market. Subscribe is idempotent
// per token, so re-running over the full snapshot is safe.
func (a *App) maintainStreamSubscriptions() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.CatalogRefreshInterval)
	defer ticker.Stop()

	a.subscribeCatalogTokens()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.subscribeCatalogTokens()
		}
	}
}

func (a *App) subscribeCatalogTokens() {
	markets := a.catalog.Snapshot(a.polymarketClient.Name())

	var tokenIDs []string
	for i := range markets {
		yes, no, ok := a.polymarketClient.TokensFor(markets[i].ID)
		if !ok {
			continue
		}
		tokenIDs = append(tokenIDs, yes, no)
	}

	err := a.stream.Subscribe(tokenIDs)
	if err != nil {
		a.logger.Warn("stream-subscribe-failed", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
		a.logger.Info("context-cancelled")
	}

	return a.Shutdown()
}
