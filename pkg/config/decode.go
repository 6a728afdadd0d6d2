package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// decodeStations converts a generic document (as produced by viper or yaml)
// into station profiles. Every top-level table is one station.
func decodeStations(raw map[string]interface{}) (*ConfigData, error) {
	cfg := &ConfigData{}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		table, ok := asTable(raw[name])
		if !ok {
			return nil, &ConfigurationError{Station: name, Reason: "station entry is not a table"}
		}
		p, err := decodeStation(NormalizeName(name), table)
		if err != nil {
			return nil, err
		}
		cfg.Stations = append(cfg.Stations, *p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeStation(name string, t map[string]interface{}) (*StationProfile, error) {
	p := &StationProfile{Name: name}
	d := decoder{station: name}

	p.Location = d.str(t, "location")
	p.Shortname = d.str(t, "shortname")

	st, ok := asTable(t["settings"])
	if !ok {
		return nil, &ConfigurationError{Station: name, Field: "settings", Reason: "missing settings table"}
	}

	s := &p.Settings
	s.LDR = d.boolean(st, "ldr", false)
	if _, ok := st["decoupling"]; ok {
		s.Decoupling = d.float(st, "decoupling")
	} else if s.LDR {
		d.fail("settings.decoupling", "required when LDR is true")
	}
	s.Smooth = d.smooth(st)
	s.GridTime = d.gridTime(st)
	s.MaxNoNodes = d.requiredInt(st, "max_no_nodes")
	s.ThresFactorCo = d.requiredFloat(st, "thres_factor_co")
	s.ThresFactorCx = d.requiredFloat(st, "thres_factor_cx")
	s.StationAltitude = d.optFloat(st, "station_altitude", 0)
	s.RollVelocity = d.optFloat(st, "roll_velocity", 0)
	s.VelocityBinScale = d.optFloat(st, "velocity_bin_scale", 0)
	s.AddToFname = d.str(st, "add_to_fname")

	if pt, ok := asTable(st["peak_finding_params"]); ok {
		s.PeakFinding = d.peakFinding(pt)
	}

	if d.err != nil {
		return nil, d.err
	}
	return p, nil
}

// decoder collects the first decoding failure for a station
type decoder struct {
	station string
	err     error
}

func (d *decoder) fail(field, format string, args ...interface{}) {
	if d.err == nil {
		d.err = &ConfigurationError{Station: d.station, Field: field, Reason: fmt.Sprintf(format, args...)}
	}
}

func (d *decoder) str(t map[string]interface{}, key string) string {
	v, ok := t[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail(key, "expected a string, got %T", v)
	}
	return s
}

func (d *decoder) boolean(t map[string]interface{}, key string, def bool) bool {
	v, ok := t[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		d.fail("settings."+key, "expected a boolean, got %T", v)
	}
	return b
}

func (d *decoder) float(t map[string]interface{}, key string) float64 {
	f, ok := toFloat(t[key])
	if !ok {
		d.fail("settings."+key, "expected a number, got %T", t[key])
	}
	return f
}

func (d *decoder) optFloat(t map[string]interface{}, key string, def float64) float64 {
	if _, ok := t[key]; !ok {
		return def
	}
	return d.float(t, key)
}

func (d *decoder) requiredFloat(t map[string]interface{}, key string) float64 {
	if _, ok := t[key]; !ok {
		d.fail("settings."+key, "required")
		return 0
	}
	return d.float(t, key)
}

func (d *decoder) requiredInt(t map[string]interface{}, key string) int {
	v, ok := t[key]
	if !ok {
		d.fail("settings."+key, "required")
		return 0
	}
	n, ok := toInt(v)
	if !ok {
		d.fail("settings."+key, "expected an integer, got %v", v)
	}
	return n
}

// smooth accepts a boolean, the literal "broad", or nothing
func (d *decoder) smooth(t map[string]interface{}) SmoothMode {
	v, ok := t["smooth"]
	if !ok || v == nil {
		return SmoothNone
	}
	switch x := v.(type) {
	case bool:
		if x {
			return SmoothStandard
		}
		return SmoothNone
	case string:
		if strings.EqualFold(x, "broad") {
			return SmoothBroad
		}
	}
	d.fail("settings.smooth", `expected a boolean or "broad", got %v`, v)
	return SmoothNone
}

// gridTime accepts an integer number of seconds or false
func (d *decoder) gridTime(t map[string]interface{}) time.Duration {
	v, ok := t["grid_time"]
	if !ok || v == nil {
		return 0
	}
	if b, ok := v.(bool); ok {
		if b {
			d.fail("settings.grid_time", "true is not a valid interval")
		}
		return 0
	}
	n, ok := toInt(v)
	if !ok {
		d.fail("settings.grid_time", "expected an integer number of seconds or false, got %v", v)
		return 0
	}
	if n < 0 {
		d.fail("settings.grid_time", "must not be negative, got %d", n)
	}
	return time.Duration(n) * time.Second
}

func (d *decoder) peakFinding(t map[string]interface{}) *PeakFindingParams {
	pf := &PeakFindingParams{}

	switch v := t["vel_smooth"].(type) {
	case nil:
	case bool:
		pf.VelSmooth = &v
	case []interface{}:
		pf.Kernel = make([]float64, 0, len(v))
		for _, w := range v {
			f, ok := toFloat(w)
			if !ok {
				d.fail("settings.peak_finding_params.vel_smooth", "kernel weight %v is not a number", w)
				break
			}
			pf.Kernel = append(pf.Kernel, f)
		}
	default:
		d.fail("settings.peak_finding_params.vel_smooth", "expected a boolean or a list of weights, got %T", v)
	}

	if _, ok := t["thres_factor_co"]; ok {
		f := d.float(t, "thres_factor_co")
		pf.ThresFactorCo = &f
	}
	if _, ok := t["thres_factor_cx"]; ok {
		f := d.float(t, "thres_factor_cx")
		pf.ThresFactorCx = &f
	}
	if _, ok := t["span"]; ok {
		// a present span must select a window; leave the key out to disable it
		pf.Span = d.float(t, "span")
		if !(pf.Span > 0) {
			d.fail("settings.peak_finding_params.span", "must be in (0,1], got %v", pf.Span)
		}
	}
	if v, ok := t["smooth_polyorder"]; ok {
		n, ok := toInt(v)
		if !ok {
			d.fail("settings.peak_finding_params.smooth_polyorder", "expected an integer, got %v", v)
		}
		pf.SmoothPolyorder = n
	}
	return pf
}

// asTable folds both map flavours (yaml.v2 produces interface keys) into a
// lower-cased string-keyed map
func asTable(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[strings.ToLower(k)] = val
		}
		return out, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[strings.ToLower(fmt.Sprint(k))] = val
		}
		return out, true
	}
	return nil, false
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint64:
		return float64(x), true
	}
	return 0, false
}

func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case int32:
		return int(x), true
	case uint64:
		return int(x), true
	case float64:
		if x == math.Trunc(x) {
			return int(x), true
		}
	}
	return 0, false
}
