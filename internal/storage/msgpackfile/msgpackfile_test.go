package msgpackfile

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/chrissnell/peaktree/internal/moments"
	"github.com/chrissnell/peaktree/internal/pipeline"
	"github.com/chrissnell/peaktree/internal/tree"
	"github.com/chrissnell/peaktree/pkg/config"
)

var t0 = time.Date(2020, 1, 5, 9, 42, 17, 0, time.UTC)

func testConfig() *config.ConfigData {
	return &config.ConfigData{Stations: []config.StationProfile{
		{Name: "polarstern", Shortname: "pol", Settings: config.ProcessingSettings{AddToFname: "_roll"}},
		{Name: "cabauw", Shortname: "cab"},
	}}
}

func result(station string, offset time.Duration, gate int) pipeline.Result {
	return pipeline.Result{
		Key: pipeline.Key{Station: station, Time: t0.Add(offset), Gate: gate},
		Output: pipeline.Output{Tree: &tree.Tree{State: tree.Finalized, Nodes: []tree.Node{
			{ID: 0, Parent: -1, Lo: 2, Hi: 12, Threshold: 1, Moments: moments.Moments{Z: 10, V: 0.25}},
		}}},
	}
}

func TestFileName(t *testing.T) {
	cfg := testConfig()
	p, _ := cfg.Station("polarstern")
	rec := Record{}
	rec.Gate.Time = t0
	if got, want := FileName(p, rec), "20200105_0942_pol_roll_peakTree.msgpack"; got != want {
		t.Errorf("FileName = %q, want %q", got, want)
	}
}

func TestWritesSortedFilePerStation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	runID := uuid.New()
	s, err := New(dir, testConfig(), runID, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	c := s.StartStorageEngine(context.Background(), &wg)
	c <- result("polarstern", time.Minute, 1)
	c <- result("polarstern", 0, 2)
	c <- result("polarstern", 0, 1)
	c <- result("cabauw", 0, 5)
	close(c)
	wg.Wait()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d files, want 2", len(entries))
	}

	recs, err := ReadFile(filepath.Join(dir, "20200105_0942_pol_roll_peakTree.msgpack"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	order := [][2]int{{0, 1}, {0, 2}, {1, 1}}
	for i, r := range recs {
		minute := int(r.Gate.Time.Sub(t0) / time.Minute)
		if minute != order[i][0] || r.Gate.Gate != order[i][1] {
			t.Errorf("record %d is minute %d gate %d, want %v", i, minute, r.Gate.Gate, order[i])
		}
		if r.Gate.RunID != runID || r.Gate.NoNodes != 1 || len(r.Nodes) != 1 {
			t.Errorf("record %d: %+v", i, r)
		}
		if r.Nodes[0].Z == nil || math.Abs(*r.Nodes[0].Z-10) > 1e-9 {
			t.Errorf("record %d root Z = %v dB, want 10", i, r.Nodes[0].Z)
		}
	}
}

func TestFlushUnknownStation(t *testing.T) {
	s, err := New(t.TempDir(), testConfig(), uuid.New(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.StoreResult(result("davos", 0, 0)); err != nil {
		t.Fatalf("StoreResult: %v", err)
	}
	if err := s.Flush(); err == nil {
		t.Error("expected an error for a station without profile")
	}
}
