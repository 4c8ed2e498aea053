package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagonal.works/ksa-disease-mapping/internal/adjacency"
	"diagonal.works/ksa-disease-mapping/internal/optional"
)

func TestFormula(t *testing.T) {
	t.Parallel()

	m := BYM(adjacency.New(2))
	assert.Equal(t, `observed ~ 1 + f(region, model = "besag", graph = g) + f(region_iid, model = "iid")`, m.Formula("g"))
	assert.Equal(t, Poisson, m.Family)
	assert.Equal(t, "expected", m.Offset)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	m := BYM(adjacency.New(2))
	require.NoError(t, m.Validate(2))
	assert.Error(t, m.Validate(3))
	assert.Error(t, Model{Family: Poisson}.Validate(0))
	assert.Error(t, Model{Family: "binomial", Graph: adjacency.New(0)}.Validate(0))

	d := Data{
		Observed: []optional.Int{optional.Some(int64(1)), optional.None[int64]()},
		Expected: []optional.Float{optional.Some(0.5), optional.None[float64]()},
	}
	require.NoError(t, d.Validate())
	assert.True(t, d.Usable(0))
	assert.False(t, d.Usable(1))

	d.Expected[0] = optional.Some(-1.0)
	assert.Error(t, d.Validate())
	assert.Error(t, Data{Observed: make([]optional.Int, 1)}.Validate())
}
