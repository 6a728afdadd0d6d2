package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testTOML = `
[Limassol]
  location = "Limassol"
  shortname = "lim"
  [Limassol.settings]
    decoupling = -30
    smooth = true
    grid_time = 6
    max_no_nodes = 15
    thres_factor_co = 3.0
    thres_factor_cx = 3.0
    LDR = true
    station_altitude = 12

[Lindenberg]
  location = "Lindenberg"
  shortname = "lin"
  [Lindenberg.settings]
    decoupling = -25
    smooth = "broad"
    grid_time = false
    max_no_nodes = 7
    thres_factor_co = 3
    thres_factor_cx = 3
    LDR = false
    station_altitude = 100
    [Lindenberg.settings.peak_finding_params]
      vel_smooth = [0.25, 0.5, 0.25]
      thres_factor_co = 2.0
      span = 0.1
      smooth_polyorder = 2
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("could not write %s: %v", path, err)
	}
	return path
}

func TestTOMLProviderLoad(t *testing.T) {
	p := NewTOMLProvider(writeFile(t, "stations.toml", testTOML))
	defer p.Close()

	cfg, err := p.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if got := cfg.Names(); len(got) != 2 || got[0] != "limassol" || got[1] != "lindenberg" {
		t.Fatalf("unexpected station names %v", got)
	}

	lim, err := p.GetStation("Limassol")
	if err != nil {
		t.Fatalf("GetStation failed: %v", err)
	}
	s := lim.Settings
	if s.Smooth != SmoothStandard || s.GridTime != 6*time.Second || s.MaxNoNodes != 15 || !s.LDR {
		t.Errorf("unexpected Limassol settings %+v", s)
	}
	if s.Decoupling != -30 || s.StationAltitude != 12 {
		t.Errorf("decoupling/altitude = %v/%v", s.Decoupling, s.StationAltitude)
	}
	if h := lim.Height(1000); h != 1012 {
		t.Errorf("Height(1000) = %v, want 1012", h)
	}

	lin, err := cfg.Station("LINDENBERG")
	if err != nil {
		t.Fatalf("Station failed: %v", err)
	}
	if lin.Settings.GridTime != 0 || lin.Settings.Smooth != SmoothBroad {
		t.Errorf("unexpected Lindenberg settings %+v", lin.Settings)
	}
	pf := lin.Settings.PeakFinding
	if pf == nil {
		t.Fatal("peak_finding_params not decoded")
	}
	if len(pf.Kernel) != 3 || pf.ThresFactorCo == nil || *pf.ThresFactorCo != 2 || pf.ThresFactorCx != nil {
		t.Errorf("unexpected peak finding params %+v", pf)
	}
	if pf.Span != 0.1 || pf.SmoothPolyorder != 2 {
		t.Errorf("span/polyorder = %v/%v", pf.Span, pf.SmoothPolyorder)
	}
}

func TestYAMLProviderMatchesTOML(t *testing.T) {
	doc := `
Cabauw:
  location: Cabauw
  shortname: cab
  settings:
    decoupling: -30
    smooth: true
    grid_time: 5
    max_no_nodes: 15
    thres_factor_co: 1.2
    thres_factor_cx: 1.2
    LDR: true
    station_altitude: 12
`
	p := NewYAMLProvider(writeFile(t, "stations.yaml", doc))
	st, err := p.GetStation("cabauw")
	if err != nil {
		t.Fatalf("GetStation failed: %v", err)
	}
	if st.Shortname != "cab" || st.Settings.ThresFactorCo != 1.2 || st.Settings.GridTime != 5*time.Second {
		t.Errorf("unexpected profile %+v", st)
	}
	if !p.IsReadOnly() {
		t.Error("YAML provider should be read-only")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{
			name:  "missing max_no_nodes",
			doc:   "[a]\nshortname = \"a\"\n[a.settings]\nthres_factor_co = 3\nthres_factor_cx = 3\n",
			field: "settings.max_no_nodes",
		},
		{
			name:  "max_no_nodes below one",
			doc:   "[a]\nshortname = \"a\"\n[a.settings]\nmax_no_nodes = 0\nthres_factor_co = 3\nthres_factor_cx = 3\n",
			field: "settings.max_no_nodes",
		},
		{
			name:  "negative threshold",
			doc:   "[a]\nshortname = \"a\"\n[a.settings]\nmax_no_nodes = 5\nthres_factor_co = -1\nthres_factor_cx = 3\n",
			field: "settings.thres_factor_co",
		},
		{
			name:  "LDR without decoupling",
			doc:   "[a]\nshortname = \"a\"\n[a.settings]\nLDR = true\nmax_no_nodes = 5\nthres_factor_co = 3\nthres_factor_cx = 3\n",
			field: "settings.decoupling",
		},
		{
			name:  "unknown smooth value",
			doc:   "[a]\nshortname = \"a\"\n[a.settings]\nsmooth = \"wide\"\nmax_no_nodes = 5\nthres_factor_co = 3\nthres_factor_cx = 3\n",
			field: "settings.smooth",
		},
		{
			name:  "asymmetric kernel",
			doc:   "[a]\nshortname = \"a\"\n[a.settings]\nmax_no_nodes = 5\nthres_factor_co = 3\nthres_factor_cx = 3\n[a.settings.peak_finding_params]\nvel_smooth = [0.2, 0.5, 0.3]\n",
			field: "settings.peak_finding_params.vel_smooth",
		},
		{
			name:  "span out of range",
			doc:   "[a]\nshortname = \"a\"\n[a.settings]\nmax_no_nodes = 5\nthres_factor_co = 3\nthres_factor_cx = 3\n[a.settings.peak_finding_params]\nspan = 1.5\n",
			field: "settings.peak_finding_params.span",
		},
		{
			name:  "explicit zero span",
			doc:   "[a]\nshortname = \"a\"\n[a.settings]\nmax_no_nodes = 5\nthres_factor_co = 3\nthres_factor_cx = 3\n[a.settings.peak_finding_params]\nspan = 0\nsmooth_polyorder = 2\n",
			field: "settings.peak_finding_params.span",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTOMLProvider(writeFile(t, "bad.toml", tt.doc)).LoadConfig()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !IsConfigurationError(err) {
				t.Fatalf("expected a ConfigurationError, got %T: %v", err, err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	yes, no := true, false
	co := 2.0

	tests := []struct {
		name       string
		settings   ProcessingSettings
		wantSmooth SmoothMode
		wantKernel int
		wantPeakCo float64
		wantCo     float64
	}{
		{
			name:       "no overrides",
			settings:   ProcessingSettings{Smooth: SmoothBroad, ThresFactorCo: 3, ThresFactorCx: 3},
			wantSmooth: SmoothBroad,
			wantPeakCo: 3,
			wantCo:     3,
		},
		{
			name: "vel_smooth false disables outer smoothing",
			settings: ProcessingSettings{Smooth: SmoothStandard, ThresFactorCo: 3, ThresFactorCx: 3,
				PeakFinding: &PeakFindingParams{VelSmooth: &no}},
			wantSmooth: SmoothNone,
			wantPeakCo: 3,
			wantCo:     3,
		},
		{
			name: "vel_smooth true enables standard smoothing",
			settings: ProcessingSettings{ThresFactorCo: 3, ThresFactorCx: 3,
				PeakFinding: &PeakFindingParams{VelSmooth: &yes}},
			wantSmooth: SmoothStandard,
			wantPeakCo: 3,
			wantCo:     3,
		},
		{
			name: "threshold override only affects peak finding",
			settings: ProcessingSettings{ThresFactorCo: 3, ThresFactorCx: 3,
				PeakFinding: &PeakFindingParams{ThresFactorCo: &co, Kernel: []float64{0.25, 0.5, 0.25}}},
			wantSmooth: SmoothNone,
			wantKernel: 3,
			wantPeakCo: 2,
			wantCo:     3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Resolve(tt.settings)
			if r.Smooth != tt.wantSmooth {
				t.Errorf("Smooth = %v, want %v", r.Smooth, tt.wantSmooth)
			}
			if len(r.Kernel) != tt.wantKernel {
				t.Errorf("len(Kernel) = %d, want %d", len(r.Kernel), tt.wantKernel)
			}
			if r.PeakThresCo != tt.wantPeakCo || r.ThresCo != tt.wantCo {
				t.Errorf("PeakThresCo/ThresCo = %v/%v, want %v/%v", r.PeakThresCo, r.ThresCo, tt.wantPeakCo, tt.wantCo)
			}
		})
	}
}

func TestCheckWindow(t *testing.T) {
	p := &StationProfile{Name: "kazr", Shortname: "kazr", Settings: ProcessingSettings{
		MaxNoNodes: 5, ThresFactorCo: 3, ThresFactorCx: 3,
		PeakFinding: &PeakFindingParams{Span: 0.02, SmoothPolyorder: 5},
	}}

	// 0.02 * 256 = 5.12 -> 5 bins, polyorder 5 does not fit
	if w := p.Settings.PeakFinding.Window(256); w != 5 {
		t.Fatalf("Window(256) = %d, want 5", w)
	}
	if err := p.CheckWindow(256); !IsConfigurationError(err) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
	// 0.02 * 512 = 10.24 -> 10 -> 11 bins
	if w := p.Settings.PeakFinding.Window(512); w != 11 {
		t.Fatalf("Window(512) = %d, want 11", w)
	}
	if err := p.CheckWindow(512); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSQLiteProviderRoundTrip(t *testing.T) {
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "stations.db"))
	if err != nil {
		t.Fatalf("NewSQLiteProvider failed: %v", err)
	}
	defer p.Close()

	co := 2.5
	want := StationProfile{
		Name:      "polarstern",
		Location:  "Polarstern",
		Shortname: "ps",
		Settings: ProcessingSettings{
			Decoupling:       -27,
			Smooth:           SmoothStandard,
			GridTime:         10 * time.Second,
			MaxNoNodes:       15,
			ThresFactorCo:    3,
			ThresFactorCx:    3,
			LDR:              true,
			StationAltitude:  12,
			RollVelocity:     2,
			VelocityBinScale: 0.041,
			AddToFname:       "_roll",
			PeakFinding:      &PeakFindingParams{ThresFactorCo: &co, Span: 0.3, SmoothPolyorder: 2},
		},
	}
	if err := p.SaveStation(&want); err != nil {
		t.Fatalf("SaveStation failed: %v", err)
	}

	got, err := p.GetStation("Polarstern")
	if err != nil {
		t.Fatalf("GetStation failed: %v", err)
	}
	gs, ws := got.Settings, want.Settings
	if gs.Smooth != ws.Smooth || gs.GridTime != ws.GridTime || gs.RollVelocity != ws.RollVelocity ||
		gs.VelocityBinScale != ws.VelocityBinScale || gs.AddToFname != ws.AddToFname || gs.LDR != ws.LDR {
		t.Errorf("settings mismatch:\n got %+v\nwant %+v", gs, ws)
	}
	if gs.PeakFinding == nil || gs.PeakFinding.ThresFactorCo == nil || *gs.PeakFinding.ThresFactorCo != co {
		t.Errorf("peak finding params not restored: %+v", gs.PeakFinding)
	}

	cfg, err := p.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if len(cfg.Stations) != 1 {
		t.Errorf("expected 1 station, got %d", len(cfg.Stations))
	}

	if _, err := p.GetStation("nowhere"); err == nil {
		t.Error("expected an error for an unknown station")
	}
}

func TestShippedStationFile(t *testing.T) {
	cfg, err := NewTOMLProvider(filepath.Join("..", "..", "configs", "stations.toml")).LoadConfig()
	if err != nil {
		t.Fatalf("shipped station file does not load: %v", err)
	}
	if len(cfg.Stations) != 9 {
		t.Errorf("expected 9 stations, got %d", len(cfg.Stations))
	}
	for _, p := range cfg.Stations {
		if err := p.CheckWindow(256); err != nil {
			t.Errorf("station %s: %v", p.Name, err)
		}
	}
}
