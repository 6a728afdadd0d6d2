// Package pipeline runs the per-gate processing chain (preprocess, noise
// floor, segmentation, tree building, moments) and fans gates out over a
// bounded worker pool.
package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chrissnell/peaktree/internal/metrics"
	"github.com/chrissnell/peaktree/internal/moments"
	"github.com/chrissnell/peaktree/internal/noise"
	"github.com/chrissnell/peaktree/internal/peaks"
	"github.com/chrissnell/peaktree/internal/spectrum"
	"github.com/chrissnell/peaktree/internal/tree"
	"github.com/chrissnell/peaktree/pkg/config"
)

// coarseHalfWidths are the triangular smoothing scales searched before the
// station's own detection kernel, coarse to fine
var coarseHalfWidths = []int{8, 4, 2}

// Key identifies the origin of a gate
type Key struct {
	Station string    `json:"station" msgpack:"station"`
	Time    time.Time `json:"time" msgpack:"time"`
	Gate    int       `json:"gate" msgpack:"gate"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Station, k.Time.UTC().Format(time.RFC3339), k.Gate)
}

// Gate is one raw spectrum handed to the pipeline. Err is set when the
// gate was rejected before processing.
type Gate struct {
	Key      Key
	Range    float64
	Spectrum spectrum.Spectrum
	Err      error
}

// Output is what the chain produces for one spectrum. Warnings carry soft
// conditions such as an unconverged noise estimate.
type Output struct {
	Tree     *tree.Tree
	NoiseCo  noise.Floor
	NoiseCx  noise.Floor
	Warnings []error
}

// Result is the outcome of one gate. Err is set when the gate was skipped.
type Result struct {
	Output
	Key      Key
	Range    float64
	Height   float64
	Err      error
	Duration time.Duration
}

// Processor holds everything needed to process gates of one station. It is
// immutable after construction and shared by all workers.
type Processor struct {
	profile   *config.StationProfile
	resolved  config.Resolved
	estimator noise.Estimator
	builder   tree.Builder
	logger    *zap.SugaredLogger

	// Savitzky-Golay kernels by spectrum length
	sgKernels sync.Map
}

// NewProcessor validates the profile and prepares a processor for it
func NewProcessor(p *config.StationProfile, logger *zap.SugaredLogger) (*Processor, error) {
	if p == nil {
		return nil, errors.New("nil station profile")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if pf := p.Settings.PeakFinding; pf != nil && pf.ThresFactorCx != nil {
		logger.Warnw("peak_finding_params.thres_factor_cx is ignored, peaks are segmented on the co channel only",
			"thres_factor_cx", *pf.ThresFactorCx)
	}
	return &Processor{
		profile:   p,
		resolved:  config.Resolve(p.Settings),
		estimator: noise.NewEstimator(),
		builder:   tree.Builder{MaxNodes: p.Settings.MaxNoNodes},
		logger:    logger,
	}, nil
}

// Profile returns the station profile the processor was built from
func (p *Processor) Profile() *config.StationProfile {
	return p.profile
}

// detectionKernel returns the finest-scale kernel for a spectrum of n bins.
// An explicit vel_smooth kernel wins over a span fit, which wins over the
// smooth mode.
func (p *Processor) detectionKernel(n int) ([]float64, error) {
	r := p.resolved
	switch {
	case len(r.Kernel) > 0:
		return r.Kernel, nil
	case r.Span > 0:
		if k, ok := p.sgKernels.Load(n); ok {
			return k.([]float64), nil
		}
		if err := p.profile.CheckWindow(n); err != nil {
			return nil, err
		}
		k, err := spectrum.SavitzkyGolay(p.profile.Settings.PeakFinding.Window(n), r.Order)
		if err != nil {
			return nil, &config.ConfigurationError{Station: p.profile.Name, Field: "settings.peak_finding_params", Reason: err.Error()}
		}
		p.sgKernels.Store(n, k)
		return k, nil
	}
	if k := spectrum.KernelFor(r.Smooth); k != nil {
		return k, nil
	}
	return []float64{1}, nil
}

// ladder returns the kernels of every detection scale, coarse to fine
func (p *Processor) ladder(n int) ([][]float64, error) {
	fine, err := p.detectionKernel(n)
	if err != nil {
		return nil, err
	}
	var out [][]float64
	for _, h := range coarseHalfWidths {
		if h > len(fine)/2 && 2*h+1 <= n {
			out = append(out, spectrum.Triangular(h))
		}
	}
	return append(out, fine), nil
}

// Process runs the full chain on one spectrum
func (p *Processor) Process(s spectrum.Spectrum) (Output, error) {
	st := p.profile.Settings
	if err := s.Validate(st.LDR); err != nil {
		return Output{}, err
	}

	kernels, err := p.ladder(s.Len())
	if err != nil {
		return Output{}, err
	}

	shifted := s.ShiftVelocity(st.RollVelocity, st.VelocityBinScale)

	var warnings []error
	warn := func(stage string, f noise.Floor) {
		if err := f.Err(); err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", stage, err))
		}
	}

	floorCo := p.estimator.Estimate(shifted.Co)
	warn("co noise", floorCo)
	var floorCx noise.Floor
	if st.LDR {
		floorCx = p.estimator.Estimate(shifted.Cx)
		warn("cx noise", floorCx)
	}

	scales := make([]tree.Scale, 0, len(kernels))
	for i, k := range kernels {
		power := shifted.Co
		if len(k) > 1 {
			power = spectrum.Convolve(shifted.Co, k)
		}
		f := p.estimator.Estimate(power)
		warn(fmt.Sprintf("scale %d noise", i), f)

		threshold := peaks.ThresholdFor(f, peaks.Co, p.resolved)
		scales = append(scales, tree.Scale{
			Power:      power,
			Threshold:  threshold,
			Candidates: peaks.Segment(power, threshold, peaks.MinWidth),
		})
	}

	t := p.builder.Build(scales)

	calc := moments.Calculator{
		Spectrum:      shifted,
		NoiseCo:       floorCo.Level,
		NoiseCx:       floorCx.Level,
		LDR:           st.LDR,
		ThresFactorCx: p.resolved.ThresCx,
		Decoupling:    st.Decoupling,
	}
	for i := range t.Nodes {
		n := &t.Nodes[i]
		n.Moments = calc.Compute(n.Lo, n.Hi, n.Threshold)
	}

	return Output{Tree: t, NoiseCo: floorCo, NoiseCx: floorCx, Warnings: warnings}, nil
}

// ProcessGate processes one gate and never fails: errors are reported on
// the result with the gate's key
func (p *Processor) ProcessGate(g Gate) Result {
	start := time.Now()
	res := Result{
		Key:    g.Key,
		Range:  g.Range,
		Height: p.profile.Height(g.Range),
	}

	err := g.Err
	var out Output
	if err == nil {
		out, err = p.Process(g.Spectrum)
	}
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = fmt.Errorf("gate %s: %w", g.Key, err)
		p.logger.Warnw("skipping gate", "time", g.Key.Time, "gate", g.Key.Gate, "error", err)
		metrics.ObserveFailure(p.profile.Name)
		return res
	}

	res.Output = out
	for _, w := range out.Warnings {
		p.logger.Debugw("soft warning", "time", g.Key.Time, "gate", g.Key.Gate, "warning", w)
		metrics.ObserveConvergenceWarning(p.profile.Name)
	}
	metrics.ObserveGate(p.profile.Name, out.Tree.State.String(), out.Tree.Len(), out.Tree.PrunedSplits, res.Duration)
	return res
}
