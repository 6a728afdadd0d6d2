// Package moments derives the physical moments of a spectral interval.
package moments

import (
	"math"

	"github.com/chrissnell/peaktree/internal/spectrum"
)

// LDRStatus says whether a node carries a usable depolarization ratio
type LDRStatus int

const (
	// LDRNotMeasured is used for stations without a cross channel
	LDRNotMeasured LDRStatus = iota
	// LDRValid means LDR and LDRMax hold finite values
	LDRValid
	// LDRMissing means the cross channel never rose above its threshold
	// within the interval. It is a node state, not an error.
	LDRMissing
)

func (s LDRStatus) String() string {
	switch s {
	case LDRValid:
		return "valid"
	case LDRMissing:
		return "missing"
	default:
		return "not_measured"
	}
}

// Moments of one node. Z, LDR and LDRMax are linear.
type Moments struct {
	Z          float64   `json:"z" msgpack:"z"`
	V          float64   `json:"v" msgpack:"v"`
	Width      float64   `json:"width" msgpack:"width"`
	Skew       float64   `json:"skew" msgpack:"skew"`
	Prominence float64   `json:"prominence" msgpack:"prominence"`
	MinV       float64   `json:"minv" msgpack:"minv"`
	MaxV       float64   `json:"maxv" msgpack:"maxv"`
	LDR        float64   `json:"ldr" msgpack:"ldr"`
	LDRMax     float64   `json:"ldrmax" msgpack:"ldrmax"`
	LDRStatus  LDRStatus `json:"ldr_status" msgpack:"ldr_status"`
}

// Calculator computes moments on the unsmoothed spectrum of one gate
type Calculator struct {
	Spectrum spectrum.Spectrum
	NoiseCo  float64
	NoiseCx  float64

	// LDR enables the cross-channel moments
	LDR bool
	// ThresFactorCx gates the cross channel (outer station setting)
	ThresFactorCx float64
	// Decoupling is the antenna coupling in dB subtracted from the ratio
	Decoupling float64
}

// Compute returns the moments of bins lo..hi. threshold is the power level
// that separated the node and only feeds the prominence.
func (c Calculator) Compute(lo, hi int, threshold float64) Moments {
	s := c.Spectrum
	m := Moments{
		MinV:   s.Velocity[lo],
		MaxV:   s.Velocity[hi],
		LDR:    math.NaN(),
		LDRMax: math.NaN(),
	}

	peakBin := lo
	var z, sum1 float64
	for i := lo; i <= hi; i++ {
		if s.Co[i] > s.Co[peakBin] {
			peakBin = i
		}
		w := math.Max(s.Co[i]-c.NoiseCo, 0)
		z += w
		sum1 += w * s.Velocity[i]
	}
	m.Z = z
	if threshold > 0 {
		m.Prominence = s.Co[peakBin] / threshold
	}

	if z > 0 {
		m.V = sum1 / z
		var sum2, sum3 float64
		for i := lo; i <= hi; i++ {
			w := math.Max(s.Co[i]-c.NoiseCo, 0)
			d := s.Velocity[i] - m.V
			sum2 += w * d * d
			sum3 += w * d * d * d
		}
		m.Width = math.Sqrt(sum2 / z)
		if m.Width > 0 {
			m.Skew = sum3 / (z * m.Width * m.Width * m.Width)
		}
	} else {
		m.V, m.Width, m.Skew = math.NaN(), math.NaN(), math.NaN()
	}

	if !c.LDR || s.Cx == nil {
		m.LDRStatus = LDRNotMeasured
		return m
	}
	c.crossMoments(&m, lo, hi, peakBin)
	return m
}

func (c Calculator) crossMoments(m *Moments, lo, hi, peakBin int) {
	s := c.Spectrum
	gate := c.NoiseCx * c.ThresFactorCx

	detected := false
	var cross float64
	for i := lo; i <= hi; i++ {
		if s.Cx[i] > gate {
			detected = true
		}
		cross += math.Max(s.Cx[i]-c.NoiseCx, 0)
	}
	if !detected || m.Z <= 0 {
		m.LDRStatus = LDRMissing
		return
	}

	coupling := math.Pow(10, c.Decoupling/10)
	m.LDR = math.Max(cross/m.Z-coupling, 0)

	if wPeak := math.Max(s.Co[peakBin]-c.NoiseCo, 0); wPeak > 0 {
		cPeak := math.Max(s.Cx[peakBin]-c.NoiseCx, 0)
		m.LDRMax = math.Max(cPeak/wPeak-coupling, 0)
	} else {
		m.LDRMax = m.LDR
	}
	m.LDRStatus = LDRValid
}
