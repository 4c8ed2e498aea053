package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	r := NewRun("Cancer", "local-eb")
	r.Join(13, 12, 1, 2, 0)
	r.Graph(0, 1)
	r.Excluded(1)
	r.MaxExceedance(0.97)
	done := r.Stage("fit")
	done()
	r.Succeeded(time.Unix(1700000000, 0))

	path := filepath.Join(t.TempDir(), "diseasemap.prom")
	require.NoError(t, r.WriteTextfile(path))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(b)

	assert.Contains(t, text, `diseasemap_regions{disease="Cancer",engine="local-eb"} 13`)
	assert.Contains(t, text, `diseasemap_regions_missing{disease="Cancer",engine="local-eb"} 1`)
	assert.Contains(t, text, `diseasemap_rows_unmatched{disease="Cancer",engine="local-eb"} 2`)
	assert.Contains(t, text, `diseasemap_graph_components{disease="Cancer",engine="local-eb"} 1`)
	assert.Contains(t, text, `diseasemap_exceedance_max{disease="Cancer",engine="local-eb"} 0.97`)
	assert.Contains(t, text, `diseasemap_stage_duration_seconds{disease="Cancer",engine="local-eb",stage="fit"}`)
	assert.Contains(t, text, `diseasemap_last_success_timestamp_seconds{disease="Cancer",engine="local-eb"} 1.7e+09`)
	assert.Contains(t, text, "# HELP diseasemap_regions Number of regions in the registry")
}

func TestRunsAreIndependent(t *testing.T) {
	t.Parallel()

	a, b := NewRun("Cancer", "inla"), NewRun("Cancer", "inla")
	a.Join(1, 1, 0, 0, 0)
	families, err := b.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "diseasemap_regions" {
			assert.Equal(t, 0.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
}
