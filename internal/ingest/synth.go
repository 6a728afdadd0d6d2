package ingest

import (
	"math"
	"math/rand"
	"time"

	"github.com/chrissnell/peaktree/internal/spectrum"
)

// Peak is one Gaussian mode of a synthetic spectrum
type Peak struct {
	Amplitude float64
	Mean      float64
	Sigma     float64
}

// Emulator generates synthetic Doppler spectra. Zero fields take the
// defaults of NewEmulator.
type Emulator struct {
	Bins       int
	VMin, VMax float64
	// Baseline is the mean noise power per bin
	Baseline float64
	// Jitter is the relative spread of the noise around Baseline
	Jitter float64
	// LDR is the linear depolarization of the signal; 0 omits the cross channel
	LDR float64

	rng *rand.Rand
}

// NewEmulator returns an emulator with a reproducible noise sequence
func NewEmulator(seed int64) *Emulator {
	return &Emulator{
		Bins:     256,
		VMin:     -8,
		VMax:     8,
		Baseline: 1,
		Jitter:   0.2,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Spectrum returns noise plus the given peaks
func (e *Emulator) Spectrum(peaks ...Peak) spectrum.Spectrum {
	s := spectrum.Spectrum{
		Velocity: make([]float64, e.Bins),
		Co:       make([]float64, e.Bins),
	}
	if e.LDR > 0 {
		s.Cx = make([]float64, e.Bins)
	}
	step := (e.VMax - e.VMin) / float64(e.Bins-1)
	for i := range s.Velocity {
		v := e.VMin + step*float64(i)
		signal := 0.0
		for _, p := range peaks {
			d := (v - p.Mean) / p.Sigma
			signal += p.Amplitude * math.Exp(-0.5*d*d)
		}
		s.Velocity[i] = v
		s.Co[i] = e.noise(e.Baseline) + signal
		if s.Cx != nil {
			s.Cx[i] = e.noise(e.Baseline/100) + e.LDR*signal
		}
	}
	return s
}

func (e *Emulator) noise(level float64) float64 {
	return level * (1 + e.Jitter*(e.rng.Float64()-0.5))
}

// Profile generates frames for nTimes profiles of nGates range gates. Low
// gates hold a bimodal liquid/ice spectrum, higher gates a single ice mode
// and the top gates only noise.
func (e *Emulator) Profile(station string, start time.Time, step time.Duration, nTimes, nGates int, gateSpacing float64) []Frame {
	frames := make([]Frame, 0, nTimes*nGates)
	for ti := 0; ti < nTimes; ti++ {
		t := start.Add(time.Duration(ti) * step)
		for g := 0; g < nGates; g++ {
			frac := float64(g) / float64(max(nGates-1, 1))
			var peaks []Peak
			switch {
			case frac < 0.4:
				peaks = []Peak{
					{Amplitude: 200, Mean: -1 - 2*frac, Sigma: 0.4},
					{Amplitude: 40, Mean: 0.3, Sigma: 0.15},
				}
			case frac < 0.8:
				peaks = []Peak{{Amplitude: 100 * (1 - frac), Mean: -1, Sigma: 0.3}}
			}
			s := e.Spectrum(peaks...)
			frames = append(frames, Frame{
				Station:  station,
				Time:     t,
				Gate:     g,
				Range:    float64(g+1) * gateSpacing,
				Velocity: s.Velocity,
				Co:       s.Co,
				Cx:       s.Cx,
			})
		}
	}
	return frames
}
