// Package app wires ingest, the gate pool, the sinks and the status server
// into one processing run
package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chrissnell/peaktree/internal/controllers/restserver"
	"github.com/chrissnell/peaktree/internal/ingest"
	"github.com/chrissnell/peaktree/internal/managers"
	"github.com/chrissnell/peaktree/internal/pipeline"
	"github.com/chrissnell/peaktree/pkg/config"
)

// ErrNoGates is returned when the input holds nothing to process
var ErrNoGates = errors.New("no gates to process")

// Options are the run settings taken from the command line
type Options struct {
	Input   string
	Station string
	Workers int
	Listen  string
	Storage managers.StorageOptions
}

// Summary counts the outcome of a run
type Summary struct {
	RunID    uuid.UUID
	Gates    int
	Failed   int
	Duration time.Duration
}

// App represents the main application
type App struct {
	cfg    *config.ConfigData
	opts   Options
	logger *zap.SugaredLogger
}

// New creates a new application instance
func New(cfg *config.ConfigData, opts Options, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
	}
}

// Run processes the input file and blocks until every result is stored or
// a shutdown signal arrives
func (a *App) Run(ctx context.Context) (Summary, error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gates, err := ingest.Load(a.opts.Input, a.cfg)
	if err != nil {
		return Summary{}, fmt.Errorf("could not load spectra: %w", err)
	}
	return a.Process(ctx, gates)
}

// Process runs already loaded gates through the pool into the sinks
func (a *App) Process(ctx context.Context, gates []pipeline.Gate) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.New()}

	if a.opts.Station != "" {
		gates = filterStation(gates, a.opts.Station)
	}
	if len(gates) == 0 {
		return sum, ErrNoGates
	}

	processors, err := pipeline.NewProcessors(a.cfg, a.logger)
	if err != nil {
		return sum, err
	}
	if err := processors.CheckWindows(gates); err != nil {
		return sum, err
	}

	var sinks sync.WaitGroup
	sinkCtx, cancelSinks := context.WithCancel(context.Background())
	defer cancelSinks()
	sm, err := managers.NewStorageManager(sinkCtx, &sinks, a.opts.Storage, a.cfg, sum.RunID, a.logger)
	if err != nil {
		return sum, err
	}

	run := restserver.NewRunStatus(sum.RunID.String())
	var server sync.WaitGroup
	serverCtx, stopServer := context.WithCancel(ctx)
	defer func() {
		stopServer()
		server.Wait()
	}()
	if a.opts.Listen != "" {
		restserver.NewController(serverCtx, &server, a.cfg, run, a.opts.Listen, a.logger).StartController()
	}

	a.logger.Infow("processing gates", "run_id", sum.RunID, "gates", len(gates), "sinks", len(sm.Engines))
	pool := pipeline.NewPool(processors, a.opts.Workers, a.logger)
	for r := range pool.Run(ctx, ingest.Feed(ctx, gates)) {
		sum.Gates++
		if r.Err != nil {
			sum.Failed++
		}
		run.Observe(r)
		sm.ResultDistributor <- r
	}

	// sinks are drained even after an interrupt so stored output stays consistent
	sm.Close()
	sinks.Wait()
	run.Finish()

	sum.Duration = time.Since(start)
	a.logger.Infow("run complete", "run_id", sum.RunID, "gates", sum.Gates, "failed", sum.Failed, "duration", sum.Duration)
	if ctx.Err() != nil {
		return sum, ctx.Err()
	}
	return sum, nil
}

func filterStation(gates []pipeline.Gate, station string) []pipeline.Gate {
	key := config.NormalizeName(station)
	out := gates[:0:0]
	for _, g := range gates {
		if g.Key.Station == key {
			out = append(out, g)
		}
	}
	return out
}
