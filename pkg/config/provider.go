package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ConfigProvider defines the interface for station profile sources
type ConfigProvider interface {
	// Load every station profile, validated
	LoadConfig() (*ConfigData, error)

	// Get a single station profile by name
	GetStation(name string) (*StationProfile, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData holds every station profile known to a provider
type ConfigData struct {
	Stations []StationProfile `json:"stations"`
}

// Station returns the profile registered under name. Names are matched
// case-insensitively because the TOML loader folds keys to lower case.
func (c *ConfigData) Station(name string) (*StationProfile, error) {
	key := NormalizeName(name)
	for i := range c.Stations {
		if c.Stations[i].Name == key {
			return &c.Stations[i], nil
		}
	}
	return nil, fmt.Errorf("station %q not found", name)
}

// Names returns the sorted station names
func (c *ConfigData) Names() []string {
	names := make([]string, 0, len(c.Stations))
	for _, s := range c.Stations {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// NormalizeName folds a station name to the form used as lookup key
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SmoothMode selects the velocity smoothing applied before peak search
type SmoothMode int

const (
	// SmoothNone passes the spectrum through unchanged
	SmoothNone SmoothMode = iota
	// SmoothStandard applies the narrow default kernel (smooth = true)
	SmoothStandard
	// SmoothBroad applies the wide kernel (smooth = "broad")
	SmoothBroad
)

func (m SmoothMode) String() string {
	switch m {
	case SmoothStandard:
		return "true"
	case SmoothBroad:
		return "broad"
	default:
		return "false"
	}
}

// ParseSmoothMode is the inverse of SmoothMode.String
func ParseSmoothMode(s string) (SmoothMode, error) {
	switch strings.ToLower(s) {
	case "", "false":
		return SmoothNone, nil
	case "true":
		return SmoothStandard, nil
	case "broad":
		return SmoothBroad, nil
	}
	return SmoothNone, fmt.Errorf("unknown smooth mode %q", s)
}

// StationProfile is the immutable per-station configuration
type StationProfile struct {
	Name      string             `json:"name"`
	Location  string             `json:"location"`
	Shortname string             `json:"shortname"`
	Settings  ProcessingSettings `json:"settings"`
}

// Height converts a range gate distance to height above mean sea level
func (p *StationProfile) Height(rangeM float64) float64 {
	return rangeM + p.Settings.StationAltitude
}

// ProcessingSettings holds the per-station tunables
type ProcessingSettings struct {
	Decoupling      float64       `json:"decoupling"`
	Smooth          SmoothMode    `json:"smooth"`
	GridTime        time.Duration `json:"grid_time"`
	MaxNoNodes      int           `json:"max_no_nodes"`
	ThresFactorCo   float64       `json:"thres_factor_co"`
	ThresFactorCx   float64       `json:"thres_factor_cx"`
	LDR             bool          `json:"LDR"`
	StationAltitude float64       `json:"station_altitude"`

	// RollVelocity is the platform roll correction in velocity bins
	RollVelocity float64 `json:"roll_velocity,omitempty"`
	// VelocityBinScale is m/s per bin; zero means use the spectrum's own bin spacing
	VelocityBinScale float64 `json:"velocity_bin_scale,omitempty"`
	AddToFname       string  `json:"add_to_fname,omitempty"`

	PeakFinding *PeakFindingParams `json:"peak_finding_params,omitempty"`
}

// PeakFindingParams overrides the outer settings for the peak-finding stage only
type PeakFindingParams struct {
	// VelSmooth toggles detection smoothing; nil leaves the outer smooth mode in charge
	VelSmooth *bool `json:"vel_smooth,omitempty"`
	// Kernel is an explicit symmetric smoothing kernel given as vel_smooth
	Kernel        []float64 `json:"kernel,omitempty"`
	ThresFactorCo *float64  `json:"thres_factor_co,omitempty"`
	ThresFactorCx *float64  `json:"thres_factor_cx,omitempty"`
	// Span is the Savitzky-Golay window as a fraction of the spectrum; zero disables it
	Span            float64 `json:"span,omitempty"`
	SmoothPolyorder int     `json:"smooth_polyorder,omitempty"`
}

// Window returns the odd Savitzky-Golay window length for a spectrum of nBins
func (p *PeakFindingParams) Window(nBins int) int {
	if p == nil || p.Span <= 0 || nBins <= 0 {
		return 0
	}
	w := int(math.Round(p.Span * float64(nBins)))
	if w%2 == 0 {
		w++
	}
	if w > nBins {
		w = nBins
		if w%2 == 0 {
			w--
		}
	}
	return w
}

// CheckWindow reports a ConfigurationError when smooth_polyorder does not fit
// into the span window of a spectrum with nBins bins
func (p *StationProfile) CheckWindow(nBins int) error {
	pf := p.Settings.PeakFinding
	if pf == nil || pf.Span <= 0 {
		return nil
	}
	if w := pf.Window(nBins); pf.SmoothPolyorder >= w {
		return &ConfigurationError{
			Station: p.Name,
			Field:   "peak_finding_params.smooth_polyorder",
			Reason:  fmt.Sprintf("polyorder %d must be less than the span window of %d points (%d bins)", pf.SmoothPolyorder, w, nBins),
		}
	}
	return nil
}
