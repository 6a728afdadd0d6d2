// Package sqlite stores peak trees in a local SQLite database
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/chrissnell/peaktree/internal/pipeline"
	"github.com/chrissnell/peaktree/internal/storage"
)

const sinkName = "sqlite"

const createGatesTableSQL = `
CREATE TABLE IF NOT EXISTS peaktree_gates (
	run_id        TEXT NOT NULL,
	station       TEXT NOT NULL,
	time          INTEGER NOT NULL,
	gate          INTEGER NOT NULL,
	range_m       REAL,
	height_m      REAL,
	state         TEXT NOT NULL,
	no_nodes      INTEGER NOT NULL DEFAULT 0,
	pruned_splits INTEGER NOT NULL DEFAULT 0,
	noise_co_dbz  REAL,
	noise_cx_dbz  REAL,
	warnings      TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, station, time, gate)
)`

const createNodesTableSQL = `
CREATE TABLE IF NOT EXISTS peaktree_nodes (
	run_id        TEXT NOT NULL,
	station       TEXT NOT NULL,
	time          INTEGER NOT NULL,
	gate          INTEGER NOT NULL,
	node_id       INTEGER NOT NULL,
	parent        INTEGER NOT NULL,
	level         INTEGER NOT NULL,
	bin_lo        INTEGER NOT NULL,
	bin_hi        INTEGER NOT NULL,
	threshold_dbz REAL,
	z_dbz         REAL,
	v             REAL,
	width         REAL,
	skew          REAL,
	prominence_db REAL,
	minv          REAL,
	maxv          REAL,
	ldr_db        REAL,
	ldrmax_db     REAL,
	ldr_status    TEXT NOT NULL,
	PRIMARY KEY (run_id, station, time, gate, node_id)
)`

const insertGateSQL = `
INSERT OR REPLACE INTO peaktree_gates
	(run_id, station, time, gate, range_m, height_m, state, no_nodes, pruned_splits,
	 noise_co_dbz, noise_cx_dbz, warnings, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertNodeSQL = `
INSERT OR REPLACE INTO peaktree_nodes
	(run_id, station, time, gate, node_id, parent, level, bin_lo, bin_hi, threshold_dbz,
	 z_dbz, v, width, skew, prominence_db, minv, maxv, ldr_db, ldrmax_db, ldr_status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Storage is a SQLite tree sink
type Storage struct {
	db     *sql.DB
	path   string
	runID  uuid.UUID
	logger *zap.SugaredLogger
}

// New opens (and if needed initializes) the database at path
func New(path string, runID uuid.UUID, logger *zap.SugaredLogger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// one writer; modernc serializes anyway and this avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}
	for _, stmt := range []string{createGatesTableSQL, createNodesTableSQL} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tree tables: %w", err)
		}
	}

	return &Storage{db: db, path: path, runID: runID, logger: logger}, nil
}

// StartStorageEngine starts the goroutine that writes results to the database
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- pipeline.Result {
	s.logger.Infow("starting SQLite storage engine", "path", s.path)
	results := make(chan pipeline.Result, 10)
	wg.Add(1)
	go storage.ProcessResults(ctx, wg, results, s.StoreResult, s.Close, sinkName, s.logger)
	return results
}

// StoreResult writes the gate and all of its nodes in one transaction
func (s *Storage) StoreResult(r pipeline.Result) error {
	g, nodes := storage.Flatten(s.runID, r)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t := g.Time.UnixNano()
	_, err = tx.Exec(insertGateSQL, g.RunID.String(), g.Station, t, g.Gate, g.Range, g.Height, g.State,
		g.NoNodes, g.PrunedSplits, null(g.NoiseCo), null(g.NoiseCx), g.Warnings, g.Error)
	if err != nil {
		return fmt.Errorf("could not insert gate: %w", err)
	}

	if len(nodes) > 0 {
		stmt, err := tx.Prepare(insertNodeSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, n := range nodes {
			_, err := stmt.Exec(n.RunID.String(), n.Station, t, n.Gate, n.NodeID, n.Parent, n.Level, n.Lo, n.Hi,
				null(n.Threshold), null(n.Z), null(n.V), null(n.Width), null(n.Skew), null(n.Prominence),
				null(n.MinV), null(n.MaxV), null(n.LDR), null(n.LDRMax), n.LDRStatus)
			if err != nil {
				return fmt.Errorf("could not insert node %d: %w", n.NodeID, err)
			}
		}
	}

	return tx.Commit()
}

// Gates returns the stored gates of a station ordered by time and gate
func (s *Storage) Gates(ctx context.Context, station string) ([]storage.GateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, station, time, gate, range_m, height_m, state, no_nodes, pruned_splits,
		       noise_co_dbz, noise_cx_dbz, warnings, error
		FROM peaktree_gates WHERE station = ? ORDER BY time, gate`, station)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.GateRecord
	for rows.Next() {
		var g storage.GateRecord
		var t int64
		var rangeM, height sql.NullFloat64
		if err := rows.Scan(&g.RunID, &g.Station, &t, &g.Gate, &rangeM, &height, &g.State, &g.NoNodes,
			&g.PrunedSplits, &g.NoiseCo, &g.NoiseCx, &g.Warnings, &g.Error); err != nil {
			return nil, err
		}
		g.Time = time.Unix(0, t).UTC()
		g.Range = rangeM.Float64
		g.Height = height.Float64
		out = append(out, g)
	}
	return out, rows.Err()
}

// Nodes returns the stored nodes of one gate ordered by node id
func (s *Storage) Nodes(ctx context.Context, station string, at time.Time, gate int) ([]storage.NodeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, station, time, gate, node_id, parent, level, bin_lo, bin_hi, threshold_dbz,
		       z_dbz, v, width, skew, prominence_db, minv, maxv, ldr_db, ldrmax_db, ldr_status
		FROM peaktree_nodes WHERE station = ? AND time = ? AND gate = ? ORDER BY node_id`,
		station, at.UnixNano(), gate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storage.NodeRecord
	for rows.Next() {
		var n storage.NodeRecord
		var t int64
		if err := rows.Scan(&n.RunID, &n.Station, &t, &n.Gate, &n.NodeID, &n.Parent, &n.Level, &n.Lo, &n.Hi,
			&n.Threshold, &n.Z, &n.V, &n.Width, &n.Skew, &n.Prominence, &n.MinV, &n.MaxV, &n.LDR, &n.LDRMax,
			&n.LDRStatus); err != nil {
			return nil, err
		}
		n.Time = time.Unix(0, t).UTC()
		out = append(out, n)
	}
	return out, rows.Err()
}

func null(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}
