// Package report runs the disease mapping pipeline end to end: registry,
// join, expected counts, neighbour graph, model fit, risk summary and maps.
package report

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"diagonal.works/ksa-disease-mapping/internal/adjacency"
	"diagonal.works/ksa-disease-mapping/internal/config"
	"diagonal.works/ksa-disease-mapping/internal/expected"
	"diagonal.works/ksa-disease-mapping/internal/inference"
	"diagonal.works/ksa-disease-mapping/internal/logging"
	"diagonal.works/ksa-disease-mapping/internal/metrics"
	"diagonal.works/ksa-disease-mapping/internal/optional"
	"diagonal.works/ksa-disease-mapping/internal/region"
	"diagonal.works/ksa-disease-mapping/internal/risk"
)

const (
	GraphFile      = "graph.adj"
	RegionsCSV     = "regions.csv"
	RegionsGeoJSON = "regions.geojson"
	CasesMap       = "cases.html"
	RiskMap        = "risk.html"
	ExceedanceMap  = "exceedance.html"
)

// Result holds every stage's output.
type Result struct {
	RunID     string
	Registry  *region.Registry
	Table     *region.Table
	Join      region.JoinReport
	Expected  expected.Result
	SMR       []optional.Float
	Graph     *adjacency.Graph
	Posterior *inference.Posterior
	Summaries []risk.Summary
	Files     []string
}

// Run executes the pipeline and writes its outputs to cfg.Output.Dir. Every
// stage completes before the first file is written, so a failed run leaves
// no partial output.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (*Result, error) {
	deps = deps.withDefaults(cfg)
	r := &Result{RunID: uuid.NewString()}

	previous := logging.Logger()
	logging.SetLogger(previous.With().Str("run_id", r.RunID).Logger())
	defer logging.SetLogger(previous)

	run := metrics.NewRun(cfg.Disease, deps.Engine.Name())
	logging.Info().Str("disease", cfg.Disease).Str("engine", deps.Engine.Name()).Float64("threshold", cfg.Model.Threshold).Msg("report started")

	var err error
	done := run.Stage("registry")
	if r.Registry, err = LoadRegistry(ctx, cfg, deps); err != nil {
		return nil, err
	}
	done()

	done = run.Stage("join")
	if r.Table, r.Join, err = LoadTable(cfg, r.Registry); err != nil {
		return nil, err
	}
	done()
	run.Join(r.Registry.Len(), r.Registry.Len()-len(r.Join.Missing), len(r.Join.Missing), len(r.Join.Unmatched), len(r.Join.Duplicates))

	done = run.Stage("expected")
	if r.Expected, err = EstimateExpected(cfg, r.Table); err != nil {
		return nil, err
	}
	done()
	run.Excluded(r.Expected.Excluded)
	r.SMR = expected.SMR(r.Table.Observed(), r.Expected.Expected)

	done = run.Stage("graph")
	if r.Graph, err = BuildGraph(cfg, r.Registry); err != nil {
		return nil, err
	}
	done()
	run.Graph(len(r.Graph.Isolated()), len(r.Graph.Components()))

	done = run.Stage("fit")
	data := inference.Data{Observed: r.Table.Observed(), Expected: r.Expected.Expected}
	if r.Posterior, err = deps.Engine.Fit(ctx, inference.BYM(r.Graph), data); err != nil {
		return nil, fmt.Errorf("report: %s fit: %w", deps.Engine.Name(), err)
	}
	done()

	done = run.Stage("risk")
	if r.Summaries, err = risk.Summarise(r.Posterior, r.Expected.Expected, cfg.Model.Threshold); err != nil {
		return nil, err
	}
	done()
	maxExceedance := 0.0
	for _, s := range r.Summaries {
		if p, ok := s.Exceedance.Get(); ok && p > maxExceedance {
			maxExceedance = p
		}
	}
	run.MaxExceedance(maxExceedance)

	done = run.Stage("output")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0o755); err != nil {
		return nil, err
	}
	if r.Files, err = r.write(cfg); err != nil {
		return nil, err
	}
	done()

	run.Succeeded(time.Now())
	if cfg.Output.MetricsTextfile != "" {
		if err := run.WriteTextfile(cfg.Output.MetricsTextfile); err != nil {
			return nil, fmt.Errorf("report: metrics: %w", err)
		}
	}
	logging.Info().Strs("files", r.Files).Float64("max_exceedance", maxExceedance).Msg("report finished")
	return r, nil
}
