// Package localeb is an in-process engine fitting a local empirical Bayes
// Poisson-Gamma model. Each region's prior is estimated from the region and
// its neighbours by the method of moments, which smooths the raw ratios
// towards the local rate the way a CAR prior would, without needing R.
package localeb

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"diagonal.works/ksa-disease-mapping/internal/inference"
	"diagonal.works/ksa-disease-mapping/internal/logging"
	"diagonal.works/ksa-disease-mapping/internal/optional"
)

const (
	Name            = "local-eb"
	DefaultGridSize = 200
	DefaultTail     = 1e-6
)

type Engine struct {
	// GridSize is the number of points each marginal is evaluated at.
	GridSize int
	// Tail is the probability left out at each end of the grid.
	Tail float64
}

func New() *Engine {
	return &Engine{GridSize: DefaultGridSize, Tail: DefaultTail}
}

func (e *Engine) Name() string {
	return Name
}

// Prior is a Gamma prior on relative risk with mean Mean and variance
// Variance.
type Prior struct {
	Mean     float64
	Variance float64
}

func (p Prior) Shape() float64 {
	return p.Mean * p.Mean / p.Variance
}

func (p Prior) Rate() float64 {
	return p.Mean / p.Variance
}

type sample struct {
	observed, expected float64
}

// moments estimates a prior from samples: the pooled rate as mean and the
// expected-weighted variance of raw ratios less the Poisson noise, floored at
// the Poisson variance of the pooled rate.
func moments(samples []sample) Prior {
	var observed, expected float64
	for _, s := range samples {
		observed += s.observed
		expected += s.expected
	}
	m := observed / expected
	spread := 0.0
	for _, s := range samples {
		r := s.observed / s.expected
		spread += s.expected * (r - m) * (r - m)
	}
	v := spread/expected - m/(expected/float64(len(samples)))
	if floor := m / expected; v < floor {
		v = floor
	}
	return Prior{Mean: m, Variance: v}
}

// Fit estimates a posterior for every region with an expected count.
// Regions without an observed count get their prior as posterior.
func (e *Engine) Fit(ctx context.Context, model inference.Model, data inference.Data) (*inference.Posterior, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if err := model.Validate(data.Len()); err != nil {
		return nil, err
	}

	samples := make([]optional.Value[sample], data.Len())
	var all []sample
	for i := 0; i < data.Len(); i++ {
		o, ok := data.Observed[i].Get()
		if !ok || !data.Usable(i) {
			continue
		}
		ex, _ := data.Expected[i].Get()
		s := sample{observed: float64(o), expected: ex}
		samples[i] = optional.Some(s)
		all = append(all, s)
	}
	if len(all) == 0 {
		return nil, fmt.Errorf("localeb: no region has both observed and expected counts")
	}
	global := moments(all)
	if !(global.Mean > 0) {
		return nil, fmt.Errorf("localeb: no cases observed, relative risk is not identifiable")
	}

	posterior := &inference.Posterior{Engine: e.Name(), Fitted: make([]optional.Value[inference.Fitted], data.Len())}
	fallbacks := 0
	for i := 0; i < data.Len(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !data.Usable(i) {
			continue
		}
		var local []sample
		for _, j := range append([]int{i}, model.Graph.Neighbours(i)...) {
			if s, ok := samples[j].Get(); ok {
				local = append(local, s)
			}
		}
		prior := global
		if len(local) > 0 {
			if p := moments(local); p.Mean > 0 {
				prior = p
			} else {
				fallbacks++
			}
		}
		shape, rate := prior.Shape(), prior.Rate()
		if s, ok := samples[i].Get(); ok {
			shape += s.observed
			rate += s.expected
		}
		fitted, err := e.marginal(shape, rate)
		if err != nil {
			return nil, fmt.Errorf("localeb: region %d: %w", i, err)
		}
		posterior.Fitted[i] = optional.Some(fitted)
	}
	logging.Info().
		Float64("global_rate", global.Mean).
		Int("fallbacks", fallbacks).
		Msg("local empirical Bayes fit")
	return posterior, nil
}

func (e *Engine) marginal(shape, rate float64) (inference.Fitted, error) {
	if !(shape > 0) || !(rate > 0) || math.IsInf(shape, 0) || math.IsInf(rate, 0) {
		return inference.Fitted{}, fmt.Errorf("degenerate posterior Gamma(%g, %g)", shape, rate)
	}
	n := e.GridSize
	if n < 2 {
		n = DefaultGridSize
	}
	tail := e.Tail
	if !(tail > 0 && tail < 0.5) {
		tail = DefaultTail
	}
	g := distuv.Gamma{Alpha: shape, Beta: rate}
	xs := floats.Span(make([]float64, n), g.Quantile(tail), g.Quantile(1-tail))
	marginal := make([]inference.Point, n)
	for k, x := range xs {
		marginal[k] = inference.Point{X: x, Density: g.Prob(x)}
	}
	return inference.Fitted{Mean: g.Mean(), Marginal: marginal}, nil
}
