package storage

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chrissnell/peaktree/internal/pipeline"
)

// ProcessResults provides a standard pattern for draining a sink's channel.
// It returns when the channel is closed or ctx is cancelled, then calls
// done so the sink can flush.
func ProcessResults(ctx context.Context, wg *sync.WaitGroup, results <-chan pipeline.Result, store func(pipeline.Result) error, done func() error, name string, logger *zap.SugaredLogger) {
	defer wg.Done()

	stored := 0
	var lastErr error
	defer func() {
		if done != nil {
			if err := done(); err != nil {
				logger.Errorw("could not flush sink", "sink", name, "error", err)
				lastErr = err
			}
		}
		status := "healthy"
		if lastErr != nil {
			status = "unhealthy"
		}
		GlobalHealthManager.UpdateHealth(name, CreateHealthData(status, "sink closed", stored, lastErr))
	}()

	for {
		select {
		case r, ok := <-results:
			if !ok {
				return
			}
			if err := store(r); err != nil {
				lastErr = err
				logger.Errorw("could not store result", "sink", name, "key", r.Key.String(), "error", err)
				GlobalHealthManager.UpdateHealth(name, CreateHealthData("unhealthy", "store failed", stored, err))
				continue
			}
			stored++
			if stored%1000 == 0 {
				GlobalHealthManager.UpdateHealth(name, CreateHealthData("healthy", "storing", stored, nil))
			}
		case <-ctx.Done():
			logger.Infof("cancellation request received. Cancelling %s result processor", name)
			return
		}
	}
}
