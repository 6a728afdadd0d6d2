// Package noise estimates the noise floor of a power spectrum by iterative
// mean/variance trimming.
package noise

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrConvergenceLimitReached is reported when trimming stops at the iteration
// cap. The last estimate is still returned and usable.
var ErrConvergenceLimitReached = errors.New("noise estimate did not converge")

const (
	DefaultSigma         = 3.0
	DefaultMaxIterations = 50
)

// Floor is the result of a noise estimate
type Floor struct {
	// Level is the mean power of the retained (noise) bins
	Level float64
	// Spread is the standard deviation of the retained bins
	Spread     float64
	Iterations int
	Converged  bool
}

// Threshold returns the detection threshold for a linear factor
func (f Floor) Threshold(factor float64) float64 {
	return f.Level * factor
}

// Err returns ErrConvergenceLimitReached for a floor that did not converge
func (f Floor) Err() error {
	if f.Converged {
		return nil
	}
	return ErrConvergenceLimitReached
}

// Estimator trims every bin above mean + Sigma*std and recomputes until no
// bin is removed or MaxIterations passes have run
type Estimator struct {
	Sigma         float64
	MaxIterations int
}

// NewEstimator returns an estimator with the default trimming parameters
func NewEstimator() Estimator {
	return Estimator{Sigma: DefaultSigma, MaxIterations: DefaultMaxIterations}
}

// Estimate computes the noise floor of power. Non-finite bins are ignored.
func (e Estimator) Estimate(power []float64) Floor {
	sigma := e.Sigma
	if sigma <= 0 {
		sigma = DefaultSigma
	}
	maxIter := e.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	kept := make([]float64, 0, len(power))
	for _, p := range power {
		if !math.IsNaN(p) && !math.IsInf(p, 0) {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		return Floor{Converged: true}
	}

	var f Floor
	for f.Iterations < maxIter {
		f.Iterations++
		mean, std := meanStd(kept)
		f.Level, f.Spread = mean, std

		limit := mean + sigma*std
		next := kept[:0]
		for _, p := range kept {
			if p <= limit {
				next = append(next, p)
			}
		}
		if len(next) == len(kept) {
			f.Converged = true
			return f
		}
		kept = next
	}

	// cap hit: report the estimate over the last trimmed set
	f.Level, f.Spread = meanStd(kept)
	return f
}

func meanStd(x []float64) (float64, float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	mean, std := stat.MeanStdDev(x, nil)
	return mean, std
}
