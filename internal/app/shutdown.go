package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. In-flight executions
// drain before storage closes so every position reaches a recorded state.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown HTTP server
	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Close the stream so no more quotes arrive
	if a.stream != nil {
		err = a.stream.Close()
		if err != nil {
			a.logger.Error("stream-close-error", zap.Error(err))
		}
	}

	// Drain producers and consumers in dependency order
	a.scheduler.Wait()
	a.detector.Wait()
	a.executor.Wait()
	a.settlement.Wait()

	// Close storage last so draining executions could still persist
	err = a.storage.Close()
	if err != nil {
		a.logger.Error("storage-close-error", zap.Error(err))
	}

	a.polymarketClient.Close()

	// Wait for remaining goroutines
	a.wg.Wait()

	a.logger.Info("application-shutdown-complete")

	return nil
}
