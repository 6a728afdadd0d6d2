package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chrissnell/peaktree/internal/log"
	"github.com/chrissnell/peaktree/pkg/config"
)

// ErrUnknownStation is reported for gates whose station has no processor
var ErrUnknownStation = errors.New("unknown station")

// Processors maps normalized station names to their processors
type Processors map[string]*Processor

// NewProcessors builds a processor for every station in cfg. Any invalid
// profile aborts the whole set.
func NewProcessors(cfg *config.ConfigData, logger *zap.SugaredLogger) (Processors, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ps := make(Processors, len(cfg.Stations))
	for i := range cfg.Stations {
		p := &cfg.Stations[i]
		proc, err := NewProcessor(p, logger.With("station", p.Name))
		if err != nil {
			return nil, err
		}
		ps[p.Name] = proc
	}
	return ps, nil
}

// Lookup returns the processor of a station
func (ps Processors) Lookup(station string) (*Processor, bool) {
	p, ok := ps[config.NormalizeName(station)]
	return p, ok
}

// CheckWindows verifies every span-based profile against the spectrum
// length of its station's first valid gate. Stations without a valid gate
// are not checked and their gates fail individually.
func (ps Processors) CheckWindows(gates []Gate) error {
	checked := make(map[*Processor]bool, len(ps))
	var errs []error
	for _, g := range gates {
		if len(checked) == len(ps) {
			break
		}
		if g.Err != nil {
			continue
		}
		p, ok := ps.Lookup(g.Key.Station)
		if !ok || checked[p] {
			continue
		}
		if g.Spectrum.Validate(p.profile.Settings.LDR) != nil {
			continue
		}
		checked[p] = true
		if err := p.profile.CheckWindow(g.Spectrum.Len()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pool processes gates concurrently with at most Workers in flight
type Pool struct {
	Processors Processors
	Workers    int
	Logger     *zap.SugaredLogger
}

// NewPool returns a pool over ps. workers <= 0 uses one worker per CPU.
func NewPool(ps Processors, workers int, logger *zap.SugaredLogger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Pool{Processors: ps, Workers: workers, Logger: logger}
}

// Run dispatches gates until the input is closed or ctx is cancelled and
// streams one result per dispatched gate. Results are not ordered. Gates
// already started when ctx is cancelled run to completion; the output
// channel is closed once they have all been delivered.
func (p *Pool) Run(ctx context.Context, gates <-chan Gate) <-chan Result {
	out := make(chan Result, p.Workers)

	go func() {
		defer close(out)

		var g errgroup.Group
		g.SetLimit(p.Workers)

		dispatched := 0
	dispatch:
		for {
			if ctx.Err() != nil {
				break
			}
			select {
			case <-ctx.Done():
				break dispatch
			case gate, ok := <-gates:
				if !ok {
					break dispatch
				}
				proc, found := p.Processors.Lookup(gate.Key.Station)
				if !found {
					err := fmt.Errorf("gate %s: %w", gate.Key, ErrUnknownStation)
					log.LogGateFailure(gate.Key.Station, gate.Key.Time, gate.Key.Gate, err)
					out <- Result{Key: gate.Key, Range: gate.Range, Err: err}
					continue
				}
				dispatched++
				g.Go(func() error {
					res := proc.ProcessGate(gate)
					if res.Err != nil {
						log.LogGateFailure(gate.Key.Station, gate.Key.Time, gate.Key.Gate, res.Err)
					}
					out <- res
					return nil
				})
			}
		}

		g.Wait()
		if ctx.Err() != nil {
			p.Logger.Infow("gate dispatch cancelled", "dispatched", dispatched)
		}
	}()

	return out
}

// ProcessAll runs a fixed set of gates and collects every result
func (p *Pool) ProcessAll(ctx context.Context, gates []Gate) []Result {
	in := make(chan Gate)
	go func() {
		defer close(in)
		for _, g := range gates {
			select {
			case in <- g:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make([]Result, 0, len(gates))
	for r := range p.Run(ctx, in) {
		results = append(results, r)
	}
	return results
}
