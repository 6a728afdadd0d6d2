package config

import (
	"errors"
	"fmt"
	"math"
)

// ConfigurationError reports a missing or out-of-range station setting.
// It is fatal at load time: a bad profile never degrades to defaults.
type ConfigurationError struct {
	Station string
	Field   string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.Station == "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration error in station %q: %s: %s", e.Station, e.Field, e.Reason)
}

// IsConfigurationError reports whether err wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

const kernelTolerance = 1e-6

// Validate checks every profile and joins all problems into one error
func (c *ConfigData) Validate() error {
	if len(c.Stations) == 0 {
		return &ConfigurationError{Field: "stations", Reason: "no station profiles defined"}
	}
	var errs []error
	seen := make(map[string]bool)
	for i := range c.Stations {
		p := &c.Stations[i]
		if seen[p.Name] {
			errs = append(errs, &ConfigurationError{Station: p.Name, Field: "name", Reason: "duplicate station"})
		}
		seen[p.Name] = true
		if err := p.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate checks a single profile
func (p *StationProfile) Validate() error {
	var errs []error
	fail := func(field, format string, args ...interface{}) {
		errs = append(errs, &ConfigurationError{Station: p.Name, Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if p.Name == "" {
		fail("name", "station name is empty")
	}
	if p.Shortname == "" {
		fail("shortname", "required")
	}

	s := p.Settings
	if s.MaxNoNodes < 1 {
		fail("settings.max_no_nodes", "must be >= 1, got %d", s.MaxNoNodes)
	}
	if !(s.ThresFactorCo > 0) || math.IsInf(s.ThresFactorCo, 0) {
		fail("settings.thres_factor_co", "must be a finite value > 0, got %v", s.ThresFactorCo)
	}
	if !(s.ThresFactorCx > 0) || math.IsInf(s.ThresFactorCx, 0) {
		fail("settings.thres_factor_cx", "must be a finite value > 0, got %v", s.ThresFactorCx)
	}
	if s.GridTime < 0 {
		fail("settings.grid_time", "must not be negative")
	}
	if math.IsNaN(s.Decoupling) || math.IsInf(s.Decoupling, 0) {
		fail("settings.decoupling", "must be finite")
	}
	if math.IsNaN(s.RollVelocity) || math.IsInf(s.RollVelocity, 0) {
		fail("settings.roll_velocity", "must be finite")
	}
	if s.VelocityBinScale < 0 || math.IsNaN(s.VelocityBinScale) || math.IsInf(s.VelocityBinScale, 0) {
		fail("settings.velocity_bin_scale", "must be a finite value > 0 when set")
	}

	if pf := s.PeakFinding; pf != nil {
		if pf.ThresFactorCo != nil && !(*pf.ThresFactorCo > 0) {
			fail("settings.peak_finding_params.thres_factor_co", "must be > 0, got %v", *pf.ThresFactorCo)
		}
		if pf.ThresFactorCx != nil && !(*pf.ThresFactorCx > 0) {
			fail("settings.peak_finding_params.thres_factor_cx", "must be > 0, got %v", *pf.ThresFactorCx)
		}
		if pf.Span < 0 || pf.Span > 1 || math.IsNaN(pf.Span) {
			fail("settings.peak_finding_params.span", "must be in (0,1], got %v", pf.Span)
		}
		if pf.SmoothPolyorder < 0 {
			fail("settings.peak_finding_params.smooth_polyorder", "must be >= 0, got %d", pf.SmoothPolyorder)
		}
		if pf.Kernel != nil {
			if err := ValidateKernel(pf.Kernel); err != nil {
				fail("settings.peak_finding_params.vel_smooth", "%v", err)
			}
		}
	}

	return errors.Join(errs...)
}

// ValidateKernel checks that k is an odd-length symmetric kernel summing to 1
func ValidateKernel(k []float64) error {
	if len(k) == 0 {
		return errors.New("kernel is empty")
	}
	if len(k)%2 == 0 {
		return fmt.Errorf("kernel length %d is not odd", len(k))
	}
	sum := 0.0
	for i, w := range k {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("kernel weight %d is not finite", i)
		}
		if math.Abs(w-k[len(k)-1-i]) > kernelTolerance {
			return fmt.Errorf("kernel is not symmetric at tap %d", i)
		}
		sum += w
	}
	if math.Abs(sum-1) > kernelTolerance {
		return fmt.Errorf("kernel weights sum to %v, not 1", sum)
	}
	return nil
}
