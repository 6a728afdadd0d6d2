package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/chrissnell/peaktree/internal/log"
	"github.com/chrissnell/peaktree/internal/pipeline"
	"github.com/chrissnell/peaktree/internal/storage"
	"github.com/chrissnell/peaktree/internal/tree"
	"github.com/chrissnell/peaktree/pkg/config"
)

func testController() *Controller {
	cfg := &config.ConfigData{Stations: []config.StationProfile{
		{Name: "limassol", Shortname: "lim", Location: "Limassol", Settings: config.ProcessingSettings{LDR: true, MaxNoNodes: 15, Smooth: config.SmoothStandard, GridTime: 6 * time.Second}},
		{Name: "cabauw", Shortname: "cab", Location: "Cabauw", Settings: config.ProcessingSettings{MaxNoNodes: 11}},
	}}
	run := NewRunStatus("run-1")
	run.Observe(pipeline.Result{Output: pipeline.Output{Tree: &tree.Tree{State: tree.Finalized}}})
	run.Observe(pipeline.Result{Err: errors.New("bad gate")})
	return NewController(context.Background(), &sync.WaitGroup{}, cfg, run, "127.0.0.1:0", nil)
}

func get(t *testing.T, c *Controller, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStations(t *testing.T) {
	c := testController()

	rec := get(t, c, "/stations")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var list []StationSummary
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list) != 2 || list[0].Name != "cabauw" || !list[1].LDR || list[1].Smooth != "true" {
		t.Errorf("unexpected stations %+v", list)
	}

	tests := []struct {
		path string
		code int
	}{
		{"/stations/Limassol", http.StatusOK},
		{"/stations/davos", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rec := get(t, c, tt.path); rec.Code != tt.code {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.code)
		}
	}
}

func TestStationMsgPack(t *testing.T) {
	rec := get(t, testController(), "/stations/cabauw?format=msgpack")
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-msgpack" {
		t.Fatalf("Content-Type = %q", ct)
	}
	var p StationDetail
	dec := msgpack.NewDecoder(rec.Body)
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Shortname != "cab" || p.Settings.MaxNoNodes != 11 {
		t.Errorf("unexpected profile %+v", p)
	}
}

func TestStationDetailUsesFileUnits(t *testing.T) {
	rec := get(t, testController(), "/stations/limassol")
	var body struct {
		Settings map[string]any `json:"settings"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := body.Settings["grid_time"]; got != 6.0 {
		t.Errorf("grid_time = %v, want 6 seconds", got)
	}
	if got := body.Settings["smooth"]; got != true {
		t.Errorf("smooth = %v, want true", got)
	}
}

func TestRunAndFailures(t *testing.T) {
	c := testController()
	log.LogGateFailure("limassol", time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), 12, errors.New("length mismatch"))

	var snap RunSnapshot
	if err := json.NewDecoder(get(t, c, "/run").Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.RunID != "run-1" || snap.Gates != 2 || snap.Failed != 1 || snap.States["finalized"] != 1 || snap.Finished != nil {
		t.Errorf("unexpected run snapshot %+v", snap)
	}

	var failures []log.FailureEntry
	if err := json.NewDecoder(get(t, c, "/failures").Body).Decode(&failures); err != nil {
		t.Fatalf("decode: %v", err)
	}
	found := false
	for _, f := range failures {
		if f.Gate == 12 && strings.Contains(f.Error, "length mismatch") {
			found = true
		}
	}
	if !found {
		t.Errorf("failure not listed: %+v", failures)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	c := testController()

	storage.GlobalHealthManager.UpdateHealth("restserver-test", storage.CreateHealthData("healthy", "ok", 1, nil))
	if rec := get(t, c, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("healthy /healthz = %d", rec.Code)
	}
	storage.GlobalHealthManager.UpdateHealth("restserver-test", storage.CreateHealthData("unhealthy", "down", 1, errors.New("ping")))
	if rec := get(t, c, "/healthz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy /healthz = %d", rec.Code)
	}
	storage.GlobalHealthManager.UpdateHealth("restserver-test", storage.CreateHealthData("healthy", "ok", 1, nil))

	rec := get(t, c, "/metrics")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "peaktree_") {
		t.Errorf("metrics endpoint returned %d", rec.Code)
	}
}
