// Package risk derives per-region relative risk and exceedance probability
// from a fitted posterior.
package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"

	"diagonal.works/ksa-disease-mapping/internal/inference"
	"diagonal.works/ksa-disease-mapping/internal/optional"
)

// ErrDegenerateMarginal is returned for a marginal that is not a usable
// density: fewer than two points, a negative or non-finite density, or no
// mass.
var ErrDegenerateMarginal = errors.New("risk: degenerate posterior marginal")

// Summary is the derived statistics of one region.
type Summary struct {
	// RelativeRisk is the posterior mean.
	RelativeRisk optional.Float
	// Exceedance is P(RR > threshold).
	Exceedance optional.Float
}

// Exceedance returns 1 - CDF(threshold) of a marginal density given as
// points, integrating with the trapezoidal rule after normalising to unit
// mass. The density is interpolated linearly at threshold, taken as zero
// outside the points, and the result is clamped to [0, 1].
func Exceedance(marginal []inference.Point, threshold float64) (float64, error) {
	if math.IsNaN(threshold) {
		return 0, fmt.Errorf("risk: threshold is NaN")
	}
	if len(marginal) < 2 {
		return 0, fmt.Errorf("%w: %d points", ErrDegenerateMarginal, len(marginal))
	}
	points := make([]inference.Point, len(marginal))
	copy(points, marginal)
	sort.SliceStable(points, func(i, j int) bool { return points[i].X < points[j].X })
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Density) || math.IsInf(p.Density, 0) || p.Density < 0 {
			return 0, fmt.Errorf("%w: point %d is (%g, %g)", ErrDegenerateMarginal, i, p.X, p.Density)
		}
		xs[i], ys[i] = p.X, p.Density
	}
	mass := integrate.Trapezoidal(xs, ys)
	if !(mass > 0) || math.IsInf(mass, 0) {
		return 0, fmt.Errorf("%w: mass %g", ErrDegenerateMarginal, mass)
	}

	n := len(xs)
	if threshold <= xs[0] {
		return 1, nil
	} else if threshold >= xs[n-1] {
		return 0, nil
	}
	k := sort.SearchFloat64s(xs, threshold)
	// xs[k-1] < threshold <= xs[k]
	t := (threshold - xs[k-1]) / (xs[k] - xs[k-1])
	y := ys[k-1] + t*(ys[k]-ys[k-1])
	below := integrate.Trapezoidal(append(xs[:k:k], threshold), append(ys[:k:k], y))
	return clamp(1 - below/mass), nil
}

func clamp(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}

// Summarise computes the relative risk and exceedance of every region. A
// region without an expected count gets absent values even when the engine
// returned a fit for it. A region with an expected count but no fit is an
// error.
func Summarise(posterior *inference.Posterior, expected []optional.Float, threshold float64) ([]Summary, error) {
	if !(threshold > 0) || math.IsInf(threshold, 0) {
		return nil, fmt.Errorf("risk: threshold must be positive, got %g", threshold)
	}
	if len(posterior.Fitted) != len(expected) {
		return nil, fmt.Errorf("risk: posterior has %d regions, expected counts %d", len(posterior.Fitted), len(expected))
	}
	summaries := make([]Summary, len(expected))
	for i, fitted := range posterior.Fitted {
		if !expected[i].OK() {
			continue
		}
		f, ok := fitted.Get()
		if !ok {
			return nil, fmt.Errorf("region %d: %w: engine returned no posterior", i, ErrDegenerateMarginal)
		}
		p, err := Exceedance(f.Marginal, threshold)
		if err != nil {
			return nil, fmt.Errorf("region %d: %w", i, err)
		}
		summaries[i] = Summary{RelativeRisk: optional.Some(f.Mean), Exceedance: optional.Some(p)}
	}
	return summaries, nil
}

func RelativeRisks(summaries []Summary) []optional.Float {
	rr := make([]optional.Float, len(summaries))
	for i, s := range summaries {
		rr[i] = s.RelativeRisk
	}
	return rr
}

func Exceedances(summaries []Summary) []optional.Float {
	p := make([]optional.Float, len(summaries))
	for i, s := range summaries {
		p[i] = s.Exceedance
	}
	return p
}
