// Package inference describes the spatial disease mapping model and the
// engines that fit it. Engines are external collaborators: an engine either
// returns a posterior for every region it was given data for, or an error
// that ends the report.
package inference

import (
	"context"
	"fmt"
	"strings"

	"diagonal.works/ksa-disease-mapping/internal/adjacency"
	"diagonal.works/ksa-disease-mapping/internal/optional"
)

type Family string

const (
	Poisson Family = "poisson"
)

type EffectKind string

const (
	// Besag is the intrinsic CAR effect over the neighbour graph.
	Besag EffectKind = "besag"
	// IID is unstructured, independent Gaussian noise per region.
	IID EffectKind = "iid"
)

// Effect is a random effect indexed by region.
type Effect struct {
	Kind EffectKind
	// Index is the covariate name holding the region index.
	Index string
}

// Model is a Poisson log linear model with expected counts as offset:
// log(theta_i) = intercept + sum of effects, observed_i ~ Poisson(E_i theta_i).
type Model struct {
	Response string
	Offset   string
	Family   Family
	Effects  []Effect
	Graph    *adjacency.Graph
}

// BYM returns the Besag-York-Mollie model: a besag effect over graph plus an
// iid effect on a copy of the region index.
func BYM(graph *adjacency.Graph) Model {
	return Model{
		Response: "observed",
		Offset:   "expected",
		Family:   Poisson,
		Effects: []Effect{
			{Kind: Besag, Index: "region"},
			{Kind: IID, Index: "region_iid"},
		},
		Graph: graph,
	}
}

// Formula renders the model as an R-INLA formula. graphVariable names the R
// variable holding the graph file.
func (m Model) Formula(graphVariable string) string {
	terms := []string{"1"}
	for _, e := range m.Effects {
		switch e.Kind {
		case Besag:
			terms = append(terms, fmt.Sprintf("f(%s, model = %q, graph = %s)", e.Index, e.Kind, graphVariable))
		default:
			terms = append(terms, fmt.Sprintf("f(%s, model = %q)", e.Index, e.Kind))
		}
	}
	return m.Response + " ~ " + strings.Join(terms, " + ")
}

func (m Model) Validate(n int) error {
	if m.Family != Poisson {
		return fmt.Errorf("inference: unsupported family %q", m.Family)
	}
	if m.Graph == nil {
		return fmt.Errorf("inference: model has no neighbour graph")
	}
	if m.Graph.Len() != n {
		return fmt.Errorf("inference: graph has %d regions, data has %d", m.Graph.Len(), n)
	}
	return nil
}

// Data holds the observed and expected counts, aligned with the graph.
type Data struct {
	Observed []optional.Int
	Expected []optional.Float
}

func (d Data) Len() int {
	return len(d.Observed)
}

func (d Data) Validate() error {
	if len(d.Observed) != len(d.Expected) {
		return fmt.Errorf("inference: %d observed counts for %d expected counts", len(d.Observed), len(d.Expected))
	}
	for i, e := range d.Expected {
		if v, ok := e.Get(); ok && !(v > 0) {
			return fmt.Errorf("inference: region %d has non positive expected count %f", i, v)
		}
	}
	return nil
}

// Usable reports whether region i takes part in the fit. Regions without an
// expected count contribute nothing to the likelihood.
func (d Data) Usable(i int) bool {
	return d.Expected[i].OK()
}

// Point is one (value, density) pair of a posterior marginal.
type Point struct {
	X       float64 `json:"x"`
	Density float64 `json:"y"`
}

// Fitted is the posterior of one region's relative risk, exp of the linear
// predictor divided by the offset.
type Fitted struct {
	Mean     float64 `json:"mean"`
	Marginal []Point `json:"marginal"`
}

// Posterior is aligned with the data; regions the engine did not fit are
// absent.
type Posterior struct {
	Engine string
	Fitted []optional.Value[Fitted]
}

type Engine interface {
	Name() string
	Fit(ctx context.Context, model Model, data Data) (*Posterior, error)
}
