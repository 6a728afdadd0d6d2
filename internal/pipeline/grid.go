package pipeline

import (
	"fmt"
	"sort"
	"time"

	"github.com/chrissnell/peaktree/internal/spectrum"
)

type gateID struct {
	station string
	gate    int
}

// GridGates averages the gates of each (station, gate) series onto a time
// grid of the given interval. The output is ordered by station, gate and
// time. A zero interval returns the input unchanged.
//
// A gate whose bin layout does not match the rest of its series is kept
// ungridded with Err set, so it fails on its own when processed.
func GridGates(gates []Gate, interval time.Duration) []Gate {
	if interval <= 0 {
		return gates
	}

	series := make(map[gateID][]spectrum.Frame)
	ranges := make(map[gateID]float64)
	var (
		ids    []gateID
		failed []Gate
	)
	for _, g := range gates {
		if g.Err != nil {
			failed = append(failed, g)
			continue
		}
		id := gateID{station: g.Key.Station, gate: g.Key.Gate}
		if _, seen := series[id]; !seen {
			ids = append(ids, id)
			ranges[id] = g.Range
		}
		series[id] = append(series[id], spectrum.Frame{Time: g.Key.Time, Spectrum: g.Spectrum})
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].station != ids[j].station {
			return ids[i].station < ids[j].station
		}
		return ids[i].gate < ids[j].gate
	})

	out := make([]Gate, 0, len(gates))
	out = append(out, failed...)
	for _, id := range ids {
		frames, rejected := spectrum.GridTime(series[id], interval)
		for _, f := range rejected {
			err := fmt.Errorf("%w: %d bins do not match the layout of the %s grid series",
				spectrum.ErrInvalidSpectrum, f.Spectrum.Len(), interval)
			out = append(out, Gate{
				Key:      Key{Station: id.station, Time: f.Time, Gate: id.gate},
				Range:    ranges[id],
				Spectrum: f.Spectrum,
				Err:      err,
			})
		}
		for _, f := range frames {
			out = append(out, Gate{
				Key:      Key{Station: id.station, Time: f.Time, Gate: id.gate},
				Range:    ranges[id],
				Spectrum: f.Spectrum,
			})
		}
	}
	return out
}
