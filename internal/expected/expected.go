// Package expected computes expected case counts by indirect standardisation.
package expected

import (
	"errors"
	"fmt"

	"diagonal.works/ksa-disease-mapping/internal/casedata"
	"diagonal.works/ksa-disease-mapping/internal/optional"
)

// ErrUndefinedRate is returned when a stratum has no population among the
// regions with complete data, so its reference rate would be 0/0 or x/0.
var ErrUndefinedRate = errors.New("expected: reference rate undefined, total population is zero")

// ErrNoCases is returned when no complete region reports a case, so every
// expected count would be zero and relative risk is not identifiable.
var ErrNoCases = errors.New("expected: no cases observed in any region")

// Rate is the pooled reference rate of one stratum.
type Rate struct {
	Label      string
	Observed   int64
	Population int64
	Rate       float64
}

type Result struct {
	Expected []optional.Float
	Rates    []Rate
	// Excluded counts regions without an expected count: those with an
	// absent input, which are also left out of the rate sums, and those in
	// Zero.
	Excluded int
	// Zero lists complete regions whose expected count came out as zero,
	// typically because their population is zero. Their expected count is
	// absent.
	Zero []int
}

// Estimate computes expected_i = sum_s population_is * rate_s, where rate_s
// is the pooled observed/population ratio of stratum s over every region with
// complete data. strata[i] holds region i's counts, one entry per stratum,
// and every region must have the same number of strata. labels name the
// strata for logging and may be nil. Inputs are not modified.
func Estimate(strata [][]casedata.Counts, labels []string) (Result, error) {
	width := -1
	for i, s := range strata {
		if width < 0 {
			width = len(s)
		} else if len(s) != width {
			return Result{}, fmt.Errorf("expected: region %d has %d strata, want %d", i, len(s), width)
		}
	}
	if width <= 0 {
		return Result{}, fmt.Errorf("expected: no strata")
	}

	rates := make([]Rate, width)
	for s := range rates {
		if s < len(labels) {
			rates[s].Label = labels[s]
		} else {
			rates[s].Label = fmt.Sprintf("stratum %d", s+1)
		}
	}
	result := Result{Expected: make([]optional.Float, len(strata))}
	complete := make([]bool, len(strata))
	for i, s := range strata {
		complete[i] = isComplete(s)
		if !complete[i] {
			result.Excluded++
			continue
		}
		for j, c := range s {
			o, _ := c.Observed.Get()
			p, _ := c.Population.Get()
			rates[j].Observed += o
			rates[j].Population += p
		}
	}
	for j := range rates {
		if rates[j].Population == 0 {
			return Result{}, fmt.Errorf("%w (%s)", ErrUndefinedRate, rates[j].Label)
		}
		rates[j].Rate = float64(rates[j].Observed) / float64(rates[j].Population)
	}
	cases := int64(0)
	for _, r := range rates {
		cases += r.Observed
	}
	if cases == 0 {
		return Result{}, ErrNoCases
	}
	for i, s := range strata {
		if !complete[i] {
			result.Expected[i] = optional.None[float64]()
			continue
		}
		e := 0.0
		for j, c := range s {
			p, _ := c.Population.Get()
			e += float64(p) * rates[j].Rate
		}
		if e == 0 {
			result.Expected[i] = optional.None[float64]()
			result.Zero = append(result.Zero, i)
			result.Excluded++
			continue
		}
		result.Expected[i] = optional.Some(e)
	}
	result.Rates = rates
	return result, nil
}

// Single is Estimate with one stratum: expected_i = population_i * (sum
// observed / sum population).
func Single(observed, population []optional.Int) ([]optional.Float, error) {
	if len(observed) != len(population) {
		return nil, fmt.Errorf("expected: %d observed counts for %d populations", len(observed), len(population))
	}
	strata := make([][]casedata.Counts, len(observed))
	for i := range observed {
		strata[i] = []casedata.Counts{{Observed: observed[i], Population: population[i]}}
	}
	r, err := Estimate(strata, nil)
	if err != nil {
		return nil, err
	}
	return r.Expected, nil
}

// SMR returns the standardised morbidity ratio observed/expected, absent when
// either side is absent or expected is zero.
func SMR(observed []optional.Int, expected []optional.Float) []optional.Float {
	smr := make([]optional.Float, len(observed))
	for i := range observed {
		o, ok := observed[i].Get()
		if !ok || i >= len(expected) {
			continue
		}
		e, ok := expected[i].Get()
		if !ok || e == 0 {
			continue
		}
		smr[i] = optional.Some(float64(o) / e)
	}
	return smr
}

func isComplete(strata []casedata.Counts) bool {
	for _, c := range strata {
		if !c.Observed.OK() || !c.Population.OK() {
			return false
		}
	}
	return true
}
