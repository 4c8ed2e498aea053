package expected

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagonal.works/ksa-disease-mapping/internal/casedata"
	"diagonal.works/ksa-disease-mapping/internal/optional"
)

func ints(vs ...int64) []optional.Int {
	o := make([]optional.Int, len(vs))
	for i, v := range vs {
		o[i] = optional.Some(v)
	}
	return o
}

func values(t *testing.T, fs []optional.Float) []float64 {
	t.Helper()
	vs := make([]float64, len(fs))
	for i, f := range fs {
		v, ok := f.Get()
		require.True(t, ok, "value %d absent", i)
		vs[i] = v
	}
	return vs
}

func TestSingle(t *testing.T) {
	t.Parallel()

	e, err := Single(ints(2, 3), ints(100, 200))
	require.NoError(t, err)
	got := values(t, e)
	assert.InDelta(t, 1.667, got[0], 1e-3)
	assert.InDelta(t, 3.333, got[1], 1e-3)
}

func TestAdjacentSquares(t *testing.T) {
	t.Parallel()

	observed := ints(10, 40)
	e, err := Single(observed, ints(1000, 2000))
	require.NoError(t, err)
	got := values(t, e)
	assert.InDelta(t, 16.67, got[0], 1e-2)
	assert.InDelta(t, 33.33, got[1], 1e-2)

	smr := values(t, SMR(observed, e))
	assert.InDelta(t, 0.6, smr[0], 1e-9)
	assert.InDelta(t, 1.2, smr[1], 1e-9)
}

func TestSumOfExpectedIsSumOfObserved(t *testing.T) {
	t.Parallel()

	observed := ints(7, 0, 31, 12)
	e, err := Single(observed, ints(5000, 1200, 40000, 9000))
	require.NoError(t, err)
	total := 0.0
	for _, v := range values(t, e) {
		total += v
	}
	assert.InDelta(t, 50.0, total, 1e-9)
}

func TestMissingValuesPropagate(t *testing.T) {
	t.Parallel()

	observed := []optional.Int{optional.Some(int64(2)), optional.None[int64](), optional.Some(int64(3))}
	population := []optional.Int{optional.Some(int64(100)), optional.Some(int64(500)), optional.Some(int64(200))}
	e, err := Single(observed, population)
	require.NoError(t, err)

	assert.False(t, e[1].OK())
	v, ok := e[0].Get()
	require.True(t, ok)
	assert.InDelta(t, 1.667, v, 1e-3, "the incomplete region is left out of the rate")

	smr := SMR(observed, e)
	assert.False(t, smr[1].OK())
	assert.True(t, smr[2].OK())
}

func TestZeroPopulation(t *testing.T) {
	t.Parallel()

	_, err := Single(ints(0, 0), ints(0, 0))
	require.ErrorIs(t, err, ErrUndefinedRate)

	_, err = Single([]optional.Int{optional.None[int64]()}, ints(10))
	require.ErrorIs(t, err, ErrUndefinedRate, "no complete region")
}

func TestZeroExpectedIsAbsent(t *testing.T) {
	t.Parallel()

	result, err := Estimate([][]casedata.Counts{
		{{Observed: optional.Some(int64(10)), Population: optional.Some(int64(1000))}},
		{{Observed: optional.Some(int64(0)), Population: optional.Some(int64(0))}},
		{{Observed: optional.Some(int64(40)), Population: optional.Some(int64(2000))}},
	}, nil)
	require.NoError(t, err)
	assert.False(t, result.Expected[1].OK())
	assert.Equal(t, []int{1}, result.Zero)
	assert.Equal(t, 1, result.Excluded)
	got, ok := result.Expected[2].Get()
	require.True(t, ok)
	assert.InDelta(t, 33.33, got, 1e-2)
}

func TestNoCases(t *testing.T) {
	t.Parallel()

	_, err := Single(ints(0, 0), ints(1000, 2000))
	require.ErrorIs(t, err, ErrNoCases)
}

func TestEstimateStrata(t *testing.T) {
	t.Parallel()

	// Two regions, two strata with rates 0.01 and 0.1.
	strata := [][]casedata.Counts{
		{
			{Observed: optional.Some(int64(5)), Population: optional.Some(int64(1000))},
			{Observed: optional.Some(int64(10)), Population: optional.Some(int64(100))},
		},
		{
			{Observed: optional.Some(int64(5)), Population: optional.Some(int64(1000))},
			{Observed: optional.Some(int64(30)), Population: optional.Some(int64(300))},
		},
	}
	result, err := Estimate(strata, []string{"15-44", "45+"})
	require.NoError(t, err)
	require.Len(t, result.Rates, 2)
	assert.Equal(t, "45+", result.Rates[1].Label)
	assert.InDelta(t, 0.005, result.Rates[0].Rate, 1e-12)
	assert.InDelta(t, 0.1, result.Rates[1].Rate, 1e-12)

	got := values(t, result.Expected)
	assert.InDelta(t, 1000*0.005+100*0.1, got[0], 1e-9)
	assert.InDelta(t, 1000*0.005+300*0.1, got[1], 1e-9)
	assert.Equal(t, int64(5), strata[0][0].Observed.Or(0), "inputs are unchanged")
}

func TestEstimateStratumWithoutPopulation(t *testing.T) {
	t.Parallel()

	strata := [][]casedata.Counts{{
		{Observed: optional.Some(int64(1)), Population: optional.Some(int64(10))},
		{Observed: optional.Some(int64(0)), Population: optional.Some(int64(0))},
	}}
	_, err := Estimate(strata, []string{"m", "f"})
	require.ErrorIs(t, err, ErrUndefinedRate)
	assert.Contains(t, err.Error(), "(f)")

	_, err = Estimate([][]casedata.Counts{{{}}, {{}, {}}}, nil)
	require.Error(t, err)
}

func TestAgeSexColumns(t *testing.T) {
	t.Parallel()

	ranges, err := AgeRanges([]int{15, 45})
	require.NoError(t, err)
	assert.Equal(t, []AgeRange{{0, 15}, {15, 45}, {Begin: 45}}, ranges)
	assert.True(t, ranges[2].Contains(90))
	assert.False(t, ranges[1].Contains(45))

	columns := Columns("Cancer", "Population", AgeSexStrata(ranges, true))
	require.Len(t, columns, 6)
	assert.Equal(t, casedata.StratumColumns{Name: "m_0-14", Observed: "Cancer_m_0-14", Population: "Population_m_0-14"}, columns[0])
	assert.Equal(t, "Cancer_f_45+", columns[5].Observed)
	assert.Equal(t, "15-44", Columns("x", "y", AgeSexStrata(ranges, false))[1].Name)
	assert.Equal(t, []string{"m_0-14", "m_15-44"}, Labels(columns[:2]))

	_, err = AgeRanges([]int{45, 15})
	require.Error(t, err)
}
