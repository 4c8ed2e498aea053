// Package boundary loads administrative boundary polygons from GeoJSON or
// ESRI shapefiles. Coordinates are longitude/latitude degrees, with X holding
// longitude.
package boundary

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
)

type Boundary struct {
	Name     string
	Code     string
	Geometry geom.MultiPolygon
}

// Provider returns the first-level administrative boundaries of a country.
type Provider interface {
	Boundaries(ctx context.Context, country string) ([]Boundary, error)
}

// Fields names the attributes read from each boundary feature. Code and
// Country are optional.
type Fields struct {
	Name    string
	Code    string
	Country string
}

// FileProvider reads boundaries from a .geojson/.json or .shp file. When
// Fields.Country is set, only features whose country attribute matches the
// requested country (case insensitively) are returned.
type FileProvider struct {
	Path   string
	Fields Fields
}

func (f *FileProvider) Boundaries(ctx context.Context, country string) ([]Boundary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var features []feature
	var err error
	switch strings.ToLower(filepath.Ext(f.Path)) {
	case ".geojson", ".json":
		features, err = readGeoJSONFile(f.Path, f.Fields)
	case ".shp":
		features, err = readShapefile(f.Path, f.Fields)
	default:
		return nil, fmt.Errorf("boundary: unsupported file type %q", f.Path)
	}
	if err != nil {
		return nil, err
	}
	boundaries := make([]Boundary, 0, len(features))
	skipped := 0
	for _, ft := range features {
		if f.Fields.Country != "" && country != "" && !strings.EqualFold(ft.country, country) {
			skipped++
			continue
		}
		if len(ft.geometry) == 0 {
			return nil, fmt.Errorf("boundary: %q has no polygon geometry", ft.name)
		}
		boundaries = append(boundaries, Boundary{Name: ft.name, Code: ft.code, Geometry: ft.geometry})
	}
	if len(boundaries) == 0 {
		return nil, fmt.Errorf("boundary: no boundaries for %q in %s (%d features skipped)", country, f.Path, skipped)
	}
	return boundaries, nil
}

type feature struct {
	name     string
	code     string
	country  string
	geometry geom.MultiPolygon
}

// Bounds returns the bounding box of all boundaries.
func Bounds(boundaries []Boundary) *geom.Bounds {
	b := geom.NewBounds()
	for _, boundary := range boundaries {
		b.Extend(boundary.Geometry.Bounds())
	}
	return b
}
