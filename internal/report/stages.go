package report

import (
	"context"
	"strings"

	"github.com/ctessum/geom"

	"diagonal.works/ksa-disease-mapping/internal/adjacency"
	"diagonal.works/ksa-disease-mapping/internal/boundary"
	"diagonal.works/ksa-disease-mapping/internal/casedata"
	"diagonal.works/ksa-disease-mapping/internal/config"
	"diagonal.works/ksa-disease-mapping/internal/expected"
	"diagonal.works/ksa-disease-mapping/internal/inference"
	"diagonal.works/ksa-disease-mapping/internal/inference/inla"
	"diagonal.works/ksa-disease-mapping/internal/inference/localeb"
	"diagonal.works/ksa-disease-mapping/internal/logging"
	"diagonal.works/ksa-disease-mapping/internal/region"
)

// Deps are the report's external collaborators. Zero fields are filled from
// the configuration.
type Deps struct {
	Boundaries boundary.Provider
	Engine     inference.Engine
	Canonical  []region.Canonical
}

func (d Deps) withDefaults(cfg *config.Config) Deps {
	if d.Boundaries == nil {
		d.Boundaries = &boundary.FileProvider{
			Path: cfg.Boundaries.Path,
			Fields: boundary.Fields{
				Name:    cfg.Boundaries.NameField,
				Code:    cfg.Boundaries.CodeField,
				Country: cfg.Boundaries.CountryField,
			},
		}
	}
	if d.Engine == nil {
		d.Engine = NewEngine(cfg)
	}
	if d.Canonical == nil {
		d.Canonical = region.SaudiArabia
	}
	return d
}

// NewEngine returns the inference engine named by the configuration.
func NewEngine(cfg *config.Config) inference.Engine {
	if cfg.Model.Engine == config.EngineLocalEB {
		return localeb.New()
	}
	return inla.New(cfg.Model.Rscript)
}

// LoadRegistry reads the boundaries and binds them to the canonical regions.
func LoadRegistry(ctx context.Context, cfg *config.Config, deps Deps) (*region.Registry, error) {
	deps = deps.withDefaults(cfg)
	boundaries, err := deps.Boundaries.Boundaries(ctx, cfg.Boundaries.Country)
	if err != nil {
		return nil, err
	}
	resolver, err := region.NewResolver(deps.Canonical)
	if err != nil {
		return nil, err
	}
	registry, err := region.NewRegistry(boundaries, resolver)
	if err != nil {
		return nil, err
	}
	logging.Info().Int("regions", registry.Len()).Msg("region registry built")
	return registry, nil
}

// LoadTable reads the case data and joins it onto the registry, logging
// rows and regions that did not join.
func LoadTable(cfg *config.Config, registry *region.Registry) (*region.Table, region.JoinReport, error) {
	rows, _, err := casedata.Read(cfg.Input.Path, cfg.CaseColumns())
	if err != nil {
		return nil, region.JoinReport{}, err
	}
	table, joined := region.Join(registry, rows)
	if !joined.Clean() {
		logging.Warn().
			Strs("unmatched", joined.Unmatched).
			Strs("missing", joined.Missing).
			Strs("duplicates", joined.Duplicates).
			Msg("case data did not join cleanly")
	}
	return table, joined, nil
}

// EstimateExpected computes the expected counts of the table.
func EstimateExpected(cfg *config.Config, table *region.Table) (expected.Result, error) {
	labels := []string{cfg.Disease}
	if strata := cfg.CaseColumns().Strata; len(strata) > 0 {
		labels = expected.Labels(strata)
	}
	result, err := expected.Estimate(table.Strata(), labels)
	if err != nil {
		return expected.Result{}, err
	}
	if len(result.Zero) > 0 {
		names := make([]string, len(result.Zero))
		for i, r := range result.Zero {
			names[i] = table.Entries[r].Region.Name
		}
		logging.Warn().Strs("regions", names).Msg("expected count is zero, regions left out of the fit")
	}
	for _, r := range result.Rates {
		logging.Debug().Str("stratum", r.Label).Int64("observed", r.Observed).Int64("population", r.Population).Float64("rate", r.Rate).Msg("reference rate")
	}
	logging.Info().Int("strata", len(result.Rates)).Int("excluded", result.Excluded).Msg("expected counts estimated")
	return result, nil
}

// BuildGraph derives the neighbour graph, warning about isolated regions
// and disconnected components.
func BuildGraph(cfg *config.Config, registry *region.Registry) (*adjacency.Graph, error) {
	shapes := make([]geom.MultiPolygon, registry.Len())
	for i, r := range registry.Regions() {
		shapes[i] = r.Geometry
	}
	graph, err := adjacency.Build(shapes, cfg.Model.SnapMeters)
	if err != nil {
		return nil, err
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	components := graph.Components()
	if isolated := graph.Isolated(); len(isolated) > 0 || len(components) > 1 {
		names := make([]string, len(isolated))
		for i, r := range isolated {
			names[i] = registry.Region(r).Name
		}
		logging.Warn().
			Strs("isolated", names).
			Int("components", len(components)).
			Str("members", describeComponents(registry, components)).
			Msg("neighbour graph is disconnected, isolated regions get non spatial estimates")
	}
	logging.Info().Int("edges", len(graph.Edges())).Int("components", len(components)).Msg("neighbour graph built")
	return graph, nil
}

func describeComponents(registry *region.Registry, components [][]int) string {
	parts := make([]string, len(components))
	for i, c := range components {
		names := make([]string, len(c))
		for j, r := range c {
			names[j] = registry.Region(r).Name
		}
		parts[i] = "[" + strings.Join(names, ", ") + "]"
	}
	return strings.Join(parts, " ")
}
