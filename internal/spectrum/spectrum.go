// Package spectrum holds Doppler power spectra and the preprocessing applied
// before peak finding: validation, roll correction, smoothing and time gridding.
// Every operation returns a new value; inputs are never modified.
package spectrum

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidSpectrum marks a malformed gate. It is fatal for that gate only.
var ErrInvalidSpectrum = errors.New("invalid spectrum")

// Spectrum is one gate's linear power spectrum. Cx is nil for stations that
// do not measure the cross-polarized channel.
type Spectrum struct {
	Velocity []float64 `msgpack:"velocity" json:"velocity"`
	Co       []float64 `msgpack:"co" json:"co"`
	Cx       []float64 `msgpack:"cx,omitempty" json:"cx,omitempty"`
}

// Len returns the number of velocity bins
func (s Spectrum) Len() int {
	return len(s.Velocity)
}

// HasCx reports whether the cross channel is present
func (s Spectrum) HasCx() bool {
	return s.Cx != nil
}

// Validate checks the axis and both channels. requireCx demands a cross
// channel, as for stations with LDR enabled.
func (s Spectrum) Validate(requireCx bool) error {
	n := len(s.Velocity)
	if n == 0 {
		return fmt.Errorf("%w: empty velocity axis", ErrInvalidSpectrum)
	}
	if len(s.Co) != n {
		return fmt.Errorf("%w: co channel has %d bins, axis has %d", ErrInvalidSpectrum, len(s.Co), n)
	}
	if requireCx && s.Cx == nil {
		return fmt.Errorf("%w: cross channel missing", ErrInvalidSpectrum)
	}
	if s.Cx != nil && len(s.Cx) != n {
		return fmt.Errorf("%w: cx channel has %d bins, axis has %d", ErrInvalidSpectrum, len(s.Cx), n)
	}

	for i, v := range s.Velocity {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: velocity bin %d is not finite", ErrInvalidSpectrum, i)
		}
		if i > 0 && v <= s.Velocity[i-1] {
			return fmt.Errorf("%w: velocity axis not strictly increasing at bin %d", ErrInvalidSpectrum, i)
		}
	}
	if err := checkPower("co", s.Co); err != nil {
		return err
	}
	if s.Cx != nil {
		return checkPower("cx", s.Cx)
	}
	return nil
}

func checkPower(channel string, p []float64) error {
	for i, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s bin %d has invalid power %v", ErrInvalidSpectrum, channel, i, v)
		}
	}
	return nil
}

// Resolution returns the mean velocity bin spacing in m/s
func (s Spectrum) Resolution() float64 {
	n := len(s.Velocity)
	if n < 2 {
		return 0
	}
	return (s.Velocity[n-1] - s.Velocity[0]) / float64(n-1)
}

// Clone returns a deep copy
func (s Spectrum) Clone() Spectrum {
	c := Spectrum{
		Velocity: append([]float64(nil), s.Velocity...),
		Co:       append([]float64(nil), s.Co...),
	}
	if s.Cx != nil {
		c.Cx = append([]float64(nil), s.Cx...)
	}
	return c
}

// ShiftVelocity corrects the axis for platform roll. rollVelocity is given
// in bins; binScale converts bins to m/s and falls back to the spectrum's
// own resolution when zero.
func (s Spectrum) ShiftVelocity(rollVelocity, binScale float64) Spectrum {
	out := s.Clone()
	if rollVelocity == 0 {
		return out
	}
	if binScale == 0 {
		binScale = s.Resolution()
	}
	shift := rollVelocity * binScale
	for i := range out.Velocity {
		out.Velocity[i] += shift
	}
	return out
}

// Smooth convolves both channels with kernel. A nil kernel returns a copy.
func (s Spectrum) Smooth(kernel []float64) Spectrum {
	if len(kernel) == 0 {
		return s.Clone()
	}
	out := Spectrum{
		Velocity: append([]float64(nil), s.Velocity...),
		Co:       Convolve(s.Co, kernel),
	}
	if s.Cx != nil {
		out.Cx = Convolve(s.Cx, kernel)
	}
	return out
}
