// Package timescaledb stores peak trees in TimescaleDB hypertables
package timescaledb

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chrissnell/peaktree/internal/database"
	"github.com/chrissnell/peaktree/internal/pipeline"
	"github.com/chrissnell/peaktree/internal/storage"
)

const sinkName = "timescaledb"

// nodeBatchSize bounds the rows of one node insert
const nodeBatchSize = 100

// Storage holds the connection of a TimescaleDB storage backend
type Storage struct {
	TimescaleDBConn *gorm.DB
	runID           uuid.UUID
	logger          *zap.SugaredLogger
}

// StartStorageEngine creates a goroutine loop to receive results and send
// them off to TimescaleDB
func (t *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- pipeline.Result {
	t.logger.Info("starting TimescaleDB storage engine...")
	results := make(chan pipeline.Result, 10)
	t.startHealthMonitor(ctx)
	wg.Add(1)
	go storage.ProcessResults(ctx, wg, results, t.StoreResult, t.Close, sinkName, t.logger)
	return results
}

// StoreResult stores a gate and its nodes in one transaction
func (t *Storage) StoreResult(r pipeline.Result) error {
	g, nodes := storage.Flatten(t.runID, r)
	return t.TimescaleDBConn.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&g).Error; err != nil {
			return fmt.Errorf("could not store gate: %w", err)
		}
		if len(nodes) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(nodes, nodeBatchSize).Error; err != nil {
			return fmt.Errorf("could not store nodes: %w", err)
		}
		return nil
	})
}

// Close releases the connection pool
func (t *Storage) Close() error {
	sqlDB, err := t.TimescaleDBConn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// New sets up a new TimescaleDB storage backend and prepares its schema
func New(ctx context.Context, connectionString string, runID uuid.UUID, logger *zap.SugaredLogger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := database.CreateConnection(connectionString)
	if err != nil {
		return nil, err
	}
	t := &Storage{TimescaleDBConn: db, runID: runID, logger: logger}

	logger.Info("creating tree tables...")
	if err := db.WithContext(ctx).AutoMigrate(&storage.GateRecord{}, &storage.NodeRecord{}); err != nil {
		t.Close()
		return nil, fmt.Errorf("could not create tree tables: %w", err)
	}

	steps := []struct {
		what string
		sql  string
	}{
		{"TimescaleDB extension", createExtensionSQL},
		{"gates hypertable", createGatesHypertableSQL},
		{"nodes hypertable", createNodesHypertableSQL},
		{"gates index", createGatesIndexSQL},
		{"nodes index", createNodesIndexSQL},
		{"1h view", createHourlyViewSQL},
		{"1h aggregation policy", addHourlyPolicySQL},
	}
	for _, s := range steps {
		logger.Infof("creating %s...", s.what)
		if err := db.WithContext(ctx).Exec(s.sql).Error; err != nil {
			t.Close()
			return nil, fmt.Errorf("could not create %s: %w", s.what, err)
		}
	}

	return t, nil
}
