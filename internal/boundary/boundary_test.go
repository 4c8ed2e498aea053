package boundary

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoSquares = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature",
     "properties": {"NAME_1": "West", "ISO_1": "XX-01", "COUNTRY": "Testland"},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
    {"type": "Feature",
     "properties": {"NAME_1": "East", "ISO_1": "XX-02", "COUNTRY": "Testland"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[1,0],[2,0],[2,1],[1,1],[1,0]]]]}},
    {"type": "Feature",
     "properties": {"NAME_1": "Elsewhere", "ISO_1": 3, "COUNTRY": "Otherland"},
     "geometry": {"type": "Polygon", "coordinates": [[[5,5],[6,5],[6,6],[5,5]]]}}
  ]
}`

var testFields = Fields{Name: "NAME_1", Code: "ISO_1", Country: "COUNTRY"}

func writeFile(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFileProviderGeoJSON(t *testing.T) {
	t.Parallel()

	p := &FileProvider{Path: writeFile(t, "regions.geojson", twoSquares), Fields: testFields}
	boundaries, err := p.Boundaries(context.Background(), "testland")
	require.NoError(t, err)
	require.Len(t, boundaries, 2)

	assert.Equal(t, "West", boundaries[0].Name)
	assert.Equal(t, "XX-01", boundaries[0].Code)
	require.Len(t, boundaries[0].Geometry, 1)
	assert.Len(t, boundaries[0].Geometry[0][0], 4, "closing vertex is dropped")
	assert.Equal(t, "East", boundaries[1].Name)

	b := Bounds(boundaries)
	assert.Equal(t, geom.Point{X: 0, Y: 0}, b.Min)
	assert.Equal(t, geom.Point{X: 2, Y: 1}, b.Max)
}

func TestFileProviderWithoutCountryFilter(t *testing.T) {
	t.Parallel()

	p := &FileProvider{Path: writeFile(t, "regions.json", twoSquares), Fields: Fields{Name: "NAME_1", Code: "ISO_1"}}
	boundaries, err := p.Boundaries(context.Background(), "Testland")
	require.NoError(t, err)
	require.Len(t, boundaries, 3)
	assert.Equal(t, "3", boundaries[2].Code, "numeric properties are stringified")
}

func TestFileProviderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"unsupported extension", "regions.kml", "<kml/>", "unsupported file type"},
		{"not a collection", "a.geojson", `{"type": "Point"}`, "expected FeatureCollection"},
		{"missing name", "b.geojson", `{"type": "FeatureCollection", "features": [{"type": "Feature", "properties": {}, "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1]]]}}]}`, "missing"},
		{"line geometry", "c.geojson", `{"type": "FeatureCollection", "features": [{"type": "Feature", "properties": {"NAME_1": "x"}, "geometry": {"type": "LineString", "coordinates": [[0,0],[1,0]]}}]}`, "unsupported geometry"},
		{"short ring", "d.geojson", `{"type": "FeatureCollection", "features": [{"type": "Feature", "properties": {"NAME_1": "x"}, "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[0,0]]]}}]}`, "ring with 2 vertices"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := &FileProvider{Path: writeFile(t, tt.file, tt.content), Fields: testFields}
			_, err := p.Boundaries(context.Background(), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFileProviderNoMatchingCountry(t *testing.T) {
	t.Parallel()

	p := &FileProvider{Path: writeFile(t, "regions.geojson", twoSquares), Fields: testFields}
	_, err := p.Boundaries(context.Background(), "Saudi Arabia")
	require.Error(t, err)
}

func TestWriteGeoJSONRoundTrip(t *testing.T) {
	t.Parallel()

	in := []Boundary{{
		Name:     "West",
		Code:     "XX-01",
		Geometry: geom.MultiPolygon{{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}}},
	}}
	var buf bytes.Buffer
	require.NoError(t, WriteGeoJSON(&buf, in, []map[string]any{{"observed": 10, "risk": nil}}))
	assert.True(t, strings.Contains(buf.String(), `"risk":null`))

	out, err := readGeoJSON(&buf, Fields{Name: "name", Code: "code"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "XX-01", out[0].code)
	assert.Equal(t, in[0].Geometry, out[0].geometry)
}
