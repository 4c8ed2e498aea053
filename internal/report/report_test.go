package report

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagonal.works/ksa-disease-mapping/internal/adjacency"
	"diagonal.works/ksa-disease-mapping/internal/boundary"
	"diagonal.works/ksa-disease-mapping/internal/config"
	"diagonal.works/ksa-disease-mapping/internal/expected"
	"diagonal.works/ksa-disease-mapping/internal/inference"
	"diagonal.works/ksa-disease-mapping/internal/inference/localeb"
	"diagonal.works/ksa-disease-mapping/internal/region"
)

type staticProvider []boundary.Boundary

func (s staticProvider) Boundaries(ctx context.Context, country string) ([]boundary.Boundary, error) {
	return s, nil
}

type failingEngine struct{ err error }

func (f failingEngine) Name() string { return "failing" }

func (f failingEngine) Fit(ctx context.Context, model inference.Model, data inference.Data) (*inference.Posterior, error) {
	return nil, f.err
}

func square(x, y float64) geom.MultiPolygon {
	return geom.MultiPolygon{{{{X: x, Y: y}, {X: x + 1, Y: y}, {X: x + 1, Y: y + 1}, {X: x, Y: y + 1}}}}
}

var canonical = []region.Canonical{
	{Code: "XX-01", Name: "West"},
	{Code: "XX-02", Name: "East"},
	{Code: "XX-03", Name: "North"},
}

func setup(t *testing.T, cases string) (*config.Config, Deps) {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "cases.csv")
	require.NoError(t, os.WriteFile(input, []byte(cases), 0o600))
	cfg := &config.Config{
		Disease: "Cancer",
		Input: config.InputConfig{
			Path:             input,
			RegionColumn:     "Region",
			ObservedColumn:   "Cancer",
			PopulationColumn: "Population",
		},
		Model: config.ModelConfig{
			Engine:     config.EngineLocalEB,
			Threshold:  1.18,
			SnapMeters: adjacency.DefaultSnapMeters,
		},
		Output: config.OutputConfig{
			Dir:             filepath.Join(dir, "out"),
			MetricsTextfile: filepath.Join(dir, "diseasemap.prom"),
		},
	}
	deps := Deps{
		Boundaries: staticProvider{
			{Name: "West", Code: "XX-01", Geometry: square(0, 0)},
			{Name: "East", Code: "XX-02", Geometry: square(1, 0)},
			{Name: "North", Code: "XX-03", Geometry: square(0, 1)},
		},
		Canonical: canonical,
	}
	return cfg, deps
}

const twoRegions = "Region,Cancer,Population\nWest,10,1000\nEast,40,2000\nAtlantis,1,1\n"

func TestRun(t *testing.T) {
	cfg, deps := setup(t, twoRegions)
	result, err := Run(context.Background(), cfg, deps)
	require.NoError(t, err)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{"East", "North", "West"}, result.Registry.Names())
	assert.Equal(t, []string{"North"}, result.Join.Missing)
	assert.Equal(t, []string{"Atlantis"}, result.Join.Unmatched)
	assert.Equal(t, [][2]int{{0, 1}, {0, 2}, {1, 2}}, result.Graph.Edges())

	east, ok := result.Expected.Expected[0].Get()
	require.True(t, ok)
	assert.InDelta(t, 33.33, east, 1e-2)
	assert.False(t, result.Expected.Expected[1].OK())
	smr, ok := result.SMR[2].Get()
	require.True(t, ok)
	assert.InDelta(t, 0.6, smr, 1e-9)

	assert.False(t, result.Summaries[1].RelativeRisk.OK(), "missing region has no relative risk")
	for _, i := range []int{0, 2} {
		p, ok := result.Summaries[i].Exceedance.Get()
		require.True(t, ok)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}

	require.Len(t, result.Files, 6)
	for _, name := range []string{GraphFile, RegionsCSV, RegionsGeoJSON, CasesMap, RiskMap, ExceedanceMap} {
		assert.FileExists(t, filepath.Join(cfg.Output.Dir, name))
	}
	entries, err := os.ReadDir(cfg.Output.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 6, "staging directory removed")

	graph, err := adjacency.ReadFile(filepath.Join(cfg.Output.Dir, GraphFile))
	require.NoError(t, err)
	assert.Equal(t, result.Graph.Edges(), graph.Edges())

	f, err := os.Open(filepath.Join(cfg.Output.Dir, RegionsCSV))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, []string{"XX-03", "North", "", "", "", "", "", ""}, records[2])
	assert.Equal(t, []string{"XX-01", "West", "1000", "10", "16.6667", "0.6000"}, records[3][:6])

	page, err := os.ReadFile(filepath.Join(cfg.Output.Dir, ExceedanceMap))
	require.NoError(t, err)
	assert.Contains(t, string(page), "P(relative risk &gt; 1.18)")
	assert.Contains(t, string(page), "North: no data")

	metrics, err := os.ReadFile(cfg.Output.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `diseasemap_regions_missing{disease="Cancer",engine="local-eb"} 1`)
}

func TestRunIsRepeatable(t *testing.T) {
	cfg, deps := setup(t, twoRegions)
	first, err := Run(context.Background(), cfg, deps)
	require.NoError(t, err)
	second, err := Run(context.Background(), cfg, deps)
	require.NoError(t, err)
	assert.Equal(t, first.Summaries, second.Summaries)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestRunWritesNothingOnEngineFailure(t *testing.T) {
	cfg, deps := setup(t, twoRegions)
	boom := errors.New("optimiser did not converge")
	deps.Engine = failingEngine{err: boom}

	_, err := Run(context.Background(), cfg, deps)
	require.ErrorIs(t, err, boom)
	assert.NoDirExists(t, cfg.Output.Dir)
	assert.NoFileExists(t, cfg.Output.MetricsTextfile)
}

func TestRunSkipsRegionWithoutPopulation(t *testing.T) {
	cfg, deps := setup(t, "Region,Cancer,Population\nWest,10,1000\nEast,40,2000\nNorth,0,0\n")
	result, err := Run(context.Background(), cfg, deps)
	require.NoError(t, err)

	assert.Empty(t, result.Join.Missing)
	assert.Equal(t, []int{1}, result.Expected.Zero)
	assert.Equal(t, 1, result.Expected.Excluded)
	assert.False(t, result.Expected.Expected[1].OK())
	assert.False(t, result.Summaries[1].RelativeRisk.OK())
	assert.False(t, result.Summaries[1].Exceedance.OK())
	assert.True(t, result.Summaries[0].Exceedance.OK())
	assert.FileExists(t, filepath.Join(cfg.Output.Dir, ExceedanceMap))
}

func TestRunFailsWithoutCases(t *testing.T) {
	cfg, deps := setup(t, "Region,Cancer,Population\nWest,0,1000\nEast,0,2000\nNorth,0,500\n")
	_, err := Run(context.Background(), cfg, deps)
	require.ErrorIs(t, err, expected.ErrNoCases)
	assert.NoDirExists(t, cfg.Output.Dir)
}

func TestRunFailsOnUndefinedRate(t *testing.T) {
	cfg, deps := setup(t, "Region,Cancer,Population\nWest,0,0\nEast,0,0\nNorth,0,0\n")
	_, err := Run(context.Background(), cfg, deps)
	require.ErrorIs(t, err, expected.ErrUndefinedRate)
	assert.NoDirExists(t, cfg.Output.Dir)
}

func TestRunFailsOnRegistryMismatch(t *testing.T) {
	cfg, deps := setup(t, twoRegions)
	deps.Boundaries = deps.Boundaries.(staticProvider)[:2]
	_, err := Run(context.Background(), cfg, deps)
	require.ErrorIs(t, err, region.ErrNotBijective)
	assert.True(t, strings.Contains(err.Error(), "missing: North"))
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Model: config.ModelConfig{Engine: config.EngineLocalEB}}
	assert.IsType(t, &localeb.Engine{}, NewEngine(cfg))
	cfg.Model.Engine = config.EngineINLA
	assert.Equal(t, "inla", NewEngine(cfg).Name())
}
