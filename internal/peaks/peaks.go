// Package peaks finds contiguous runs of signal above a detection threshold.
package peaks

import (
	"sort"

	"github.com/chrissnell/peaktree/internal/noise"
	"github.com/chrissnell/peaktree/pkg/config"
)

// MinWidth is the narrowest run, in bins, that counts as a candidate
const MinWidth = 2

// Candidate is one run of bins strictly above the threshold
type Candidate struct {
	Lo, Hi    int
	PeakBin   int
	PeakPower float64
}

// Width returns the number of bins in the run
func (c Candidate) Width() int {
	return c.Hi - c.Lo + 1
}

// Contains reports whether bin i lies within the run
func (c Candidate) Contains(i int) bool {
	return i >= c.Lo && i <= c.Hi
}

// Segment scans power in increasing bin order and returns every run of
// bins strictly above threshold that is at least minWidth bins wide
func Segment(power []float64, threshold float64, minWidth int) []Candidate {
	var (
		out  []Candidate
		open bool
		cur  Candidate
	)

	closeRun := func(hi int) {
		cur.Hi = hi
		if cur.Width() >= minWidth {
			out = append(out, cur)
		}
		open = false
	}

	for i, p := range power {
		above := p > threshold
		switch {
		case above && !open:
			cur = Candidate{Lo: i, PeakBin: i, PeakPower: p}
			open = true
		case above && open:
			if p > cur.PeakPower {
				cur.PeakBin, cur.PeakPower = i, p
			}
		case !above && open:
			closeRun(i - 1)
		}
	}
	if open {
		closeRun(len(power) - 1)
	}
	return out
}

// Channel selects the polarization a threshold applies to
type Channel int

const (
	Co Channel = iota
	Cx
)

// ThresholdFor returns the peak-finding threshold of a channel
func ThresholdFor(floor noise.Floor, ch Channel, r config.Resolved) float64 {
	if ch == Cx {
		return floor.Threshold(r.PeakThresCx)
	}
	return floor.Threshold(r.PeakThresCo)
}

// Minimum is an interior local minimum of a spectrum
type Minimum struct {
	Bin   int
	Power float64
}

// LocalMinima returns the interior minima of power[lo..hi], lowest first.
// A flat bottom reports its last bin.
func LocalMinima(power []float64, lo, hi int) []Minimum {
	if lo < 0 {
		lo = 0
	}
	if hi >= len(power) {
		hi = len(power) - 1
	}

	var out []Minimum
	for i := lo + 1; i < hi; i++ {
		if !(power[i-1] > power[i]) {
			continue
		}
		j := i
		for j < hi && power[j+1] == power[i] {
			j++
		}
		if j < hi && power[j+1] > power[j] {
			out = append(out, Minimum{Bin: j, Power: power[j]})
		}
		i = j
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Power < out[b].Power
	})
	return out
}

// Hull returns the smallest interval covering every candidate
func Hull(cands []Candidate) (lo, hi int) {
	lo, hi = cands[0].Lo, cands[0].Hi
	for _, c := range cands[1:] {
		lo = min(lo, c.Lo)
		hi = max(hi, c.Hi)
	}
	return lo, hi
}
