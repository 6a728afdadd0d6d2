package timescaledb

import (
	"context"
	"time"

	"github.com/chrissnell/peaktree/internal/database"
	"github.com/chrissnell/peaktree/internal/storage"
)

const healthInterval = 60 * time.Second

// startHealthMonitor starts a goroutine that periodically updates the health status
func (t *Storage) startHealthMonitor(ctx context.Context) {
	go func() {
		t.updateHealthStatus(ctx)

		ticker := time.NewTicker(healthInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				t.updateHealthStatus(ctx)
			case <-ctx.Done():
				t.logger.Info("stopping TimescaleDB health monitor")
				return
			}
		}
	}()
}

// updateHealthStatus pings the database and records the outcome
func (t *Storage) updateHealthStatus(ctx context.Context) {
	prev, _ := storage.GlobalHealthManager.GetHealth(sinkName)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.Ping(pingCtx, t.TimescaleDBConn); err != nil {
		storage.GlobalHealthManager.UpdateHealth(sinkName, storage.CreateHealthData("unhealthy", "TimescaleDB check failed", prev.Stored, err))
		t.logger.Warnw("TimescaleDB health check failed", "error", err)
		return
	}
	storage.GlobalHealthManager.UpdateHealth(sinkName, storage.CreateHealthData("healthy", "TimescaleDB operational - ping: OK, query test: OK", prev.Stored, nil))
}
