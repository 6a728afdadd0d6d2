package restserver

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chrissnell/peaktree/internal/log"
	"github.com/chrissnell/peaktree/internal/storage"
	"github.com/chrissnell/peaktree/pkg/config"
	"github.com/chrissnell/peaktree/pkg/responseformat"
)

// Handlers contains all HTTP handlers for the status server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// HealthResponse is the body of /healthz
type HealthResponse struct {
	Status string                        `json:"status"`
	Sinks  map[string]storage.HealthData `json:"sinks"`
}

// StationSummary is one entry of /stations
type StationSummary struct {
	Name       string `json:"name"`
	Shortname  string `json:"shortname"`
	Location   string `json:"location"`
	LDR        bool   `json:"ldr"`
	MaxNoNodes int    `json:"max_no_nodes"`
	Smooth     string `json:"smooth"`
}

// StationDetail is the body of /stations/{name}. It mirrors the station
// file layout, so grid_time is in seconds and smooth is true, false or "broad".
type StationDetail struct {
	Name      string         `json:"name"`
	Location  string         `json:"location"`
	Shortname string         `json:"shortname"`
	Settings  StationSettings `json:"settings"`
}

// StationSettings is the settings table of a StationDetail
type StationSettings struct {
	Decoupling       float64                   `json:"decoupling"`
	Smooth           any                       `json:"smooth"`
	GridTime         float64                   `json:"grid_time"`
	MaxNoNodes       int                       `json:"max_no_nodes"`
	ThresFactorCo    float64                   `json:"thres_factor_co"`
	ThresFactorCx    float64                   `json:"thres_factor_cx"`
	LDR              bool                      `json:"LDR"`
	StationAltitude  float64                   `json:"station_altitude"`
	RollVelocity     float64                   `json:"roll_velocity,omitempty"`
	VelocityBinScale float64                   `json:"velocity_bin_scale,omitempty"`
	AddToFname       string                    `json:"add_to_fname,omitempty"`
	PeakFinding      *config.PeakFindingParams `json:"peak_finding_params,omitempty"`
}

// GetHealth reports 503 when any sink is unhealthy
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	resp := HealthResponse{Status: "ok", Sinks: storage.GlobalHealthManager.GetAllHealth()}
	status := http.StatusOK
	for _, s := range resp.Sinks {
		if s.Status != "healthy" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}
	h.write(w, req, status, resp)
}

// GetRun returns the progress of the current run
func (h *Handlers) GetRun(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, http.StatusOK, h.controller.run.Snapshot())
}

// GetStations lists the loaded station profiles
func (h *Handlers) GetStations(w http.ResponseWriter, req *http.Request) {
	cfg := h.controller.cfg
	out := make([]StationSummary, 0, len(cfg.Stations))
	for _, name := range cfg.Names() {
		p, _ := cfg.Station(name)
		out = append(out, summarize(p))
	}
	h.write(w, req, http.StatusOK, out)
}

// GetStation returns the full profile of one station
func (h *Handlers) GetStation(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	p, err := h.controller.cfg.Station(name)
	if err != nil {
		h.formatter.WriteError(w, req, http.StatusNotFound, fmt.Sprintf("station %q not found", name))
		return
	}
	h.write(w, req, http.StatusOK, detail(p))
}

// GetFailures returns the most recent gate failures
func (h *Handlers) GetFailures(w http.ResponseWriter, req *http.Request) {
	h.write(w, req, http.StatusOK, log.GetFailureBuffer().Entries())
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	if err := h.formatter.WriteResponse(w, req, status, data); err != nil {
		h.controller.logger.Errorw("could not write response", "path", req.URL.Path, "error", err)
	}
}

func summarize(p *config.StationProfile) StationSummary {
	return StationSummary{
		Name:       p.Name,
		Shortname:  p.Shortname,
		Location:   p.Location,
		LDR:        p.Settings.LDR,
		MaxNoNodes: p.Settings.MaxNoNodes,
		Smooth:     p.Settings.Smooth.String(),
	}
}

func detail(p *config.StationProfile) StationDetail {
	s := p.Settings
	var smooth any
	switch s.Smooth {
	case config.SmoothNone:
		smooth = false
	case config.SmoothStandard:
		smooth = true
	default:
		smooth = s.Smooth.String()
	}
	return StationDetail{
		Name:      p.Name,
		Location:  p.Location,
		Shortname: p.Shortname,
		Settings: StationSettings{
			Decoupling:       s.Decoupling,
			Smooth:           smooth,
			GridTime:         s.GridTime.Seconds(),
			MaxNoNodes:       s.MaxNoNodes,
			ThresFactorCo:    s.ThresFactorCo,
			ThresFactorCx:    s.ThresFactorCx,
			LDR:              s.LDR,
			StationAltitude:  s.StationAltitude,
			RollVelocity:     s.RollVelocity,
			VelocityBinScale: s.VelocityBinScale,
			AddToFname:       s.AddToFname,
			PeakFinding:      s.PeakFinding,
		},
	}
}
