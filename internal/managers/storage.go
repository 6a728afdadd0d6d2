package managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chrissnell/peaktree/internal/pipeline"
	"github.com/chrissnell/peaktree/internal/storage"
	"github.com/chrissnell/peaktree/internal/storage/msgpackfile"
	"github.com/chrissnell/peaktree/internal/storage/sqlite"
	"github.com/chrissnell/peaktree/internal/storage/timescaledb"
	"github.com/chrissnell/peaktree/pkg/config"
)

// StorageOptions selects the sinks of a run. Empty fields disable a sink.
type StorageOptions struct {
	SQLitePath  string
	MsgpackDir  string
	TimescaleDB string
}

// StorageManager holds our active storage backends
type StorageManager struct {
	Engines           []StorageEngine
	ResultDistributor chan pipeline.Result

	logger *zap.SugaredLogger
	once   sync.Once
}

// StorageEngine holds a backend's interface as well as the channel for
// passing results to it
type StorageEngine struct {
	Name   string
	Engine storage.TreeSink
	C      chan<- pipeline.Result
}

// NewStorageManager creates a StorageManager populated with every sink
// enabled in opts and starts the distributor
func NewStorageManager(ctx context.Context, wg *sync.WaitGroup, opts StorageOptions, cfg *config.ConfigData, runID uuid.UUID, logger *zap.SugaredLogger) (*StorageManager, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &StorageManager{
		ResultDistributor: make(chan pipeline.Result, 20),
		logger:            logger,
	}

	if opts.SQLitePath != "" {
		e, err := sqlite.New(opts.SQLitePath, runID, logger.With("sink", "sqlite"))
		if err != nil {
			return nil, fmt.Errorf("could not add SQLite storage backend: %w", err)
		}
		s.AddEngine(ctx, wg, "sqlite", e)
	}

	if opts.MsgpackDir != "" {
		e, err := msgpackfile.New(opts.MsgpackDir, cfg, runID, logger.With("sink", "msgpackfile"))
		if err != nil {
			s.abort()
			return nil, fmt.Errorf("could not add msgpack file storage backend: %w", err)
		}
		s.AddEngine(ctx, wg, "msgpackfile", e)
	}

	if opts.TimescaleDB != "" {
		e, err := timescaledb.New(ctx, opts.TimescaleDB, runID, logger.With("sink", "timescaledb"))
		if err != nil {
			s.abort()
			return nil, fmt.Errorf("could not add TimescaleDB storage backend: %w", err)
		}
		s.AddEngine(ctx, wg, "timescaledb", e)
	}

	wg.Add(1)
	go s.startResultDistributor(ctx, wg)

	return s, nil
}

// AddEngine starts a sink and registers its channel
func (s *StorageManager) AddEngine(ctx context.Context, wg *sync.WaitGroup, name string, e storage.TreeSink) {
	s.Engines = append(s.Engines, StorageEngine{
		Name:   name,
		Engine: e,
		C:      e.StartStorageEngine(ctx, wg),
	})
	storage.GlobalHealthManager.UpdateHealth(name, storage.CreateHealthData("healthy", "started", 0, nil))
}

// abort closes the sinks already started when a later one fails to open
func (s *StorageManager) abort() {
	for _, e := range s.Engines {
		close(e.C)
	}
	s.Engines = nil
}

// Close stops accepting results. Sinks flush once the distributor has
// handed them everything already queued.
func (s *StorageManager) Close() {
	s.once.Do(func() { close(s.ResultDistributor) })
}

// startResultDistributor receives results from the pool and fans them out to
// every sink
func (s *StorageManager) startResultDistributor(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer func() {
		for _, e := range s.Engines {
			close(e.C)
		}
	}()

	count := 0
	for {
		select {
		case r, ok := <-s.ResultDistributor:
			if !ok {
				s.logger.Infow("result distributor drained", "results", count)
				return
			}
			count++
			for _, e := range s.Engines {
				select {
				case e.C <- r:
				case <-ctx.Done():
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
