package app

import (
	"context"

	"meerchat/pkg/logger"
)

// Shutdown stops accepting requests, then tears components down in reverse
// start order. Errors are logged; the first one is returned.
func (a *App) Shutdown(ctx context.Context) error {
	a.state = "shutting_down"
	logger.Info("shutdown_requested")
	var first error
	keep := func(err error) {
		if first == nil {
			first = err
		}
	}

	if a.srvFast != nil {
		logger.Info("shutdown_http")
		if err := a.srvFast.ShutdownWithContext(ctx); err != nil {
			logger.Error("shutdown_http_failed", "error", err)
			keep(err)
		}
	}
	if a.gatewayStop != nil {
		a.gatewayStop()
	}

	if a.jobsCancel != nil {
		logger.Info("shutdown_jobs")
		a.jobsCancel()
	}

	if a.bridgeStop != nil {
		a.bridgeStop()
	}
	if a.bridgeDone != nil {
		select {
		case <-a.bridgeDone:
		case <-ctx.Done():
			logger.Warn("shutdown_bridge_timeout")
		}
	}
	if a.hub != nil {
		logger.Info("shutdown_changefeed")
		a.hub.Close()
	}

	if a.hwSensor != nil {
		a.hwSensor.Stop()
	}

	if a.db != nil {
		logger.Info("shutdown_store")
		if err := a.db.Close(); err != nil {
			logger.Error("shutdown_store_failed", "error", err)
			keep(err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logger.Error("shutdown_redis_failed", "error", err)
		}
	}

	if first == nil {
		a.state = "stopped"
	}
	logger.Info("shutdown_complete", "state", a.state)
	return first
}
