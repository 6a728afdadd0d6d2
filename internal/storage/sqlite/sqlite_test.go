package sqlite

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chrissnell/peaktree/internal/moments"
	"github.com/chrissnell/peaktree/internal/noise"
	"github.com/chrissnell/peaktree/internal/pipeline"
	"github.com/chrissnell/peaktree/internal/storage"
	"github.com/chrissnell/peaktree/internal/tree"
)

var gateTime = time.Date(2021, 6, 1, 3, 4, 5, 500, time.UTC)

func result(gate int, nodes ...tree.Node) pipeline.Result {
	state := tree.NoSignal
	if len(nodes) > 0 {
		state = tree.Finalized
	}
	return pipeline.Result{
		Key:    pipeline.Key{Station: "cabauw", Time: gateTime, Gate: gate},
		Range:  float64(gate) * 30,
		Height: float64(gate)*30 + 1,
		Output: pipeline.Output{
			NoiseCo: noise.Floor{Level: 1, Converged: true},
			Tree:    &tree.Tree{State: state, Nodes: nodes},
		},
	}
}

func TestStoreAndReadBack(t *testing.T) {
	runID := uuid.New()
	s, err := New(filepath.Join(t.TempDir(), "trees.db"), runID, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()

	r := result(3,
		tree.Node{ID: 0, Parent: -1, Lo: 1, Hi: 9, Threshold: 10, Moments: moments.Moments{Z: 1000, V: 1.5, Width: 0.2, Skew: math.NaN(), LDR: math.NaN(), LDRMax: math.NaN()}},
	)
	if err := s.StoreResult(r); err != nil {
		t.Fatalf("StoreResult: %v", err)
	}
	if err := s.StoreResult(result(4)); err != nil {
		t.Fatalf("StoreResult: %v", err)
	}

	gates, err := s.Gates(context.Background(), "cabauw")
	if err != nil {
		t.Fatalf("Gates: %v", err)
	}
	if len(gates) != 2 {
		t.Fatalf("got %d gates, want 2", len(gates))
	}
	g := gates[0]
	if g.RunID != runID || !g.Time.Equal(gateTime) || g.Gate != 3 || g.NoNodes != 1 || g.State != "finalized" {
		t.Errorf("unexpected gate %+v", g)
	}
	if g.NoiseCo == nil || *g.NoiseCo != 0 || g.NoiseCx != nil {
		t.Errorf("noise = %v/%v, want 0 dB and NULL", g.NoiseCo, g.NoiseCx)
	}
	if gates[1].State != "no_signal" || gates[1].NoNodes != 0 {
		t.Errorf("empty gate stored as %+v", gates[1])
	}

	nodes, err := s.Nodes(context.Background(), "cabauw", gateTime, 3)
	if err != nil {
		t.Fatalf("Nodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes", len(nodes))
	}
	n := nodes[0]
	if n.Parent != -1 || n.Hi != 9 || math.Abs(*n.Z-30) > 1e-9 || *n.V != 1.5 || n.Skew != nil || n.LDR != nil || n.LDRStatus != "not_measured" {
		t.Errorf("unexpected node %+v", n)
	}
}

func TestStorageEngineDrainsOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trees.db")
	s, err := New(path, uuid.New(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	c := s.StartStorageEngine(context.Background(), &wg)
	for gate := 0; gate < 25; gate++ {
		c <- result(gate)
	}
	close(c)
	wg.Wait()

	h, ok := storage.GlobalHealthManager.GetHealth(sinkName)
	if !ok || h.Stored != 25 || h.Status != "healthy" {
		t.Errorf("health = %+v", h)
	}

	reopened, err := New(path, uuid.New(), nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	gates, err := reopened.Gates(context.Background(), "cabauw")
	if err != nil {
		t.Fatalf("Gates: %v", err)
	}
	if len(gates) != 25 {
		t.Errorf("got %d stored gates, want 25", len(gates))
	}
}
