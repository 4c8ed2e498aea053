package optional

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSomeAndNone(t *testing.T) {
	t.Parallel()

	v, ok := Some(int64(4)).Get()
	assert.True(t, ok)
	assert.Equal(t, int64(4), v)

	_, ok = None[int64]().Get()
	assert.False(t, ok)
	assert.Equal(t, 7.5, None[float64]().Or(7.5))
}

func TestMapPropagatesAbsence(t *testing.T) {
	t.Parallel()

	assert.False(t, Float64(None[int64]()).OK())
	f, ok := Float64(Some(int64(3))).Get()
	require.True(t, ok)
	assert.Equal(t, 3.0, f)
}

func TestJSONEncodesAbsentAsNull(t *testing.T) {
	t.Parallel()

	type row struct {
		Observed Int   `json:"observed"`
		Risk     Float `json:"risk"`
	}
	b, err := json.Marshal(row{Observed: Some(int64(12))})
	require.NoError(t, err)
	assert.JSONEq(t, `{"observed":12,"risk":null}`, string(b))

	var back row
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, Some(int64(12)), back.Observed)
	assert.False(t, back.Risk.OK())
}

func TestFormat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", FormatInt(None[int64]()))
	assert.Equal(t, "10", FormatInt(Some(int64(10))))
	assert.Equal(t, "1.667", FormatFloat(Some(5.0/3.0), 3))
	assert.Equal(t, "", FormatFloat(None[float64](), 3))
}
