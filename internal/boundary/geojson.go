package boundary

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ctessum/geom"
	"github.com/goccy/go-json"
)

type geoJSON struct {
	Type       string           `json:"type"`
	Features   []geoJSONFeature `json:"features"`
	Properties map[string]any   `json:"properties"`
	Geometry   *geoJSONGeometry `json:"geometry"`
}

type geoJSONFeature struct {
	Type       string           `json:"type"`
	Properties map[string]any   `json:"properties"`
	Geometry   *geoJSONGeometry `json:"geometry"`
}

type geoJSONGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func readGeoJSONFile(path string, fields Fields) ([]feature, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	features, err := readGeoJSON(f, fields)
	if err != nil {
		return nil, fmt.Errorf("boundary: %s: %w", path, err)
	}
	return features, nil
}

// readGeoJSON parses a FeatureCollection, or a single Feature, of Polygon and
// MultiPolygon geometries.
func readGeoJSON(r io.Reader, fields Fields) ([]feature, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var doc geoJSON
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	var raw []geoJSONFeature
	switch strings.ToLower(doc.Type) {
	case "featurecollection":
		raw = doc.Features
	case "feature":
		raw = []geoJSONFeature{{Type: doc.Type, Properties: doc.Properties, Geometry: doc.Geometry}}
	default:
		return nil, fmt.Errorf("expected FeatureCollection or Feature, found %q", doc.Type)
	}
	features := make([]feature, 0, len(raw))
	for i, f := range raw {
		ft := feature{
			name:    property(f.Properties, fields.Name),
			code:    property(f.Properties, fields.Code),
			country: property(f.Properties, fields.Country),
		}
		if ft.name == "" {
			return nil, fmt.Errorf("feature %d: missing %q property", i, fields.Name)
		}
		if f.Geometry == nil {
			return nil, fmt.Errorf("feature %q: no geometry", ft.name)
		}
		if ft.geometry, err = decodeGeometry(f.Geometry); err != nil {
			return nil, fmt.Errorf("feature %q: %w", ft.name, err)
		}
		features = append(features, ft)
	}
	return features, nil
}

func decodeGeometry(g *geoJSONGeometry) (geom.MultiPolygon, error) {
	switch strings.ToLower(g.Type) {
	case "polygon":
		var coords [][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, err
		}
		p, err := toPolygon(coords)
		if err != nil {
			return nil, err
		}
		return geom.MultiPolygon{p}, nil
	case "multipolygon":
		var coords [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, err
		}
		mp := make(geom.MultiPolygon, 0, len(coords))
		for _, part := range coords {
			p, err := toPolygon(part)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil
	}
	return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
}

// toPolygon converts GeoJSON rings, the first being the outer ring, dropping
// the closing vertex GeoJSON repeats.
func toPolygon(rings [][][]float64) (geom.Polygon, error) {
	p := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		path := make(geom.Path, 0, len(ring))
		for _, c := range ring {
			if len(c) < 2 {
				return nil, fmt.Errorf("coordinate with %d values", len(c))
			}
			path = append(path, geom.Point{X: c[0], Y: c[1]})
		}
		if n := len(path); n > 1 && path[0] == path[n-1] {
			path = path[:n-1]
		}
		if len(path) < 3 {
			return nil, fmt.Errorf("ring with %d vertices", len(path))
		}
		p = append(p, path)
	}
	return p, nil
}

func property(props map[string]any, key string) string {
	if key == "" {
		return ""
	}
	switch v := props[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprint(v)
	}
}

// WriteGeoJSON encodes boundaries as a FeatureCollection with the given
// per-feature properties.
func WriteGeoJSON(w io.Writer, boundaries []Boundary, properties []map[string]any) error {
	out := struct {
		Type     string `json:"type"`
		Features []any  `json:"features"`
	}{Type: "FeatureCollection"}
	for i, b := range boundaries {
		props := map[string]any{"name": b.Name, "code": b.Code}
		if i < len(properties) {
			for k, v := range properties[i] {
				props[k] = v
			}
		}
		out.Features = append(out.Features, map[string]any{
			"type":       "Feature",
			"properties": props,
			"geometry":   encodeGeometry(b.Geometry),
		})
	}
	e := json.NewEncoder(w)
	return e.Encode(out)
}

func encodeGeometry(mp geom.MultiPolygon) map[string]any {
	coords := make([][][][2]float64, len(mp))
	for i, p := range mp {
		coords[i] = make([][][2]float64, len(p))
		for j, path := range p {
			ring := make([][2]float64, 0, len(path)+1)
			for _, pt := range path {
				ring = append(ring, [2]float64{pt.X, pt.Y})
			}
			if len(path) > 0 {
				ring = append(ring, [2]float64{path[0].X, path[0].Y})
			}
			coords[i][j] = ring
		}
	}
	return map[string]any{"type": "MultiPolygon", "coordinates": coords}
}
