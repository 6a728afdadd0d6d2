// Package msgpackfile writes one msgpack tree file per station and run
package msgpackfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/chrissnell/peaktree/internal/pipeline"
	"github.com/chrissnell/peaktree/internal/storage"
	"github.com/chrissnell/peaktree/pkg/config"
)

const sinkName = "msgpackfile"

// Record is one gate and its nodes as written to a tree file
type Record struct {
	Gate  storage.GateRecord    `msgpack:"gate"`
	Nodes []storage.NodeRecord `msgpack:"nodes"`
}

// Storage buffers results per station and writes them, sorted by time and
// gate, when its channel is closed
type Storage struct {
	Dir   string
	runID uuid.UUID
	cfg   *config.ConfigData

	mu      sync.Mutex
	pending map[string][]Record

	logger *zap.SugaredLogger
}

// New returns a sink writing into dir, which is created if missing
func New(dir string, cfg *config.ConfigData, runID uuid.UUID, logger *zap.SugaredLogger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create output directory: %w", err)
	}
	return &Storage{
		Dir:     dir,
		runID:   runID,
		cfg:     cfg,
		pending: make(map[string][]Record),
		logger:  logger,
	}, nil
}

// StartStorageEngine starts the goroutine that collects results
func (s *Storage) StartStorageEngine(ctx context.Context, wg *sync.WaitGroup) chan<- pipeline.Result {
	s.logger.Infow("starting msgpack file storage engine", "dir", s.Dir)
	results := make(chan pipeline.Result, 10)
	wg.Add(1)
	go storage.ProcessResults(ctx, wg, results, s.StoreResult, s.Flush, sinkName, s.logger)
	return results
}

// StoreResult queues a result for its station's file
func (s *Storage) StoreResult(r pipeline.Result) error {
	g, nodes := storage.Flatten(s.runID, r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[g.Station] = append(s.pending[g.Station], Record{Gate: g, Nodes: nodes})
	return nil
}

// FileName returns the tree file name for a station run starting at the
// first stored gate
func FileName(p *config.StationProfile, first Record) string {
	return fmt.Sprintf("%s_%s%s_peakTree.msgpack",
		first.Gate.Time.UTC().Format("20060102_1504"), p.Shortname, p.Settings.AddToFname)
}

// Flush writes every pending station to its file and returns the first
// error encountered
func (s *Storage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stations := make([]string, 0, len(s.pending))
	for name := range s.pending {
		stations = append(stations, name)
	}
	sort.Strings(stations)

	var errs []error
	for _, name := range stations {
		recs := s.pending[name]
		sort.SliceStable(recs, func(i, j int) bool {
			a, b := recs[i].Gate, recs[j].Gate
			if !a.Time.Equal(b.Time) {
				return a.Time.Before(b.Time)
			}
			return a.Gate < b.Gate
		})

		p, err := s.cfg.Station(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		path := filepath.Join(s.Dir, FileName(p, recs[0]))
		if err := writeFile(path, recs); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		s.logger.Infow("wrote tree file", "station", name, "path", path, "gates", len(recs))
		delete(s.pending, name)
	}
	return errors.Join(errs...)
}

func writeFile(path string, recs []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	enc := msgpack.NewEncoder(w)
	for i := range recs {
		if err := enc.Encode(&recs[i]); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile decodes every record of a tree file
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := msgpack.NewDecoder(bufio.NewReader(f))
	var out []Record
	for {
		var r Record
		if err := dec.Decode(&r); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, r)
	}
}
