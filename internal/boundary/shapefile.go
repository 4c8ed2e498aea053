package boundary

import (
	"fmt"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// readShapefile decodes polygon shapes and their attributes. GADM and
// Natural Earth level 1 files are already in longitude/latitude, so no
// reprojection is applied.
func readShapefile(path string, fields Fields) ([]feature, error) {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, err
	}
	defer d.Close()

	names := []string{fields.Name}
	if fields.Code != "" {
		names = append(names, fields.Code)
	}
	if fields.Country != "" {
		names = append(names, fields.Country)
	}

	var features []feature
	for {
		g, attrs, more := d.DecodeRowFields(names...)
		if !more {
			break
		}
		name, ok := attrs[fields.Name]
		if !ok {
			return nil, fmt.Errorf("boundary: %s: missing attribute column %s", path, fields.Name)
		}
		ft := feature{
			name:    strings.TrimSpace(name),
			code:    strings.TrimSpace(attrs[fields.Code]),
			country: strings.TrimSpace(attrs[fields.Country]),
		}
		switch t := g.(type) {
		case geom.Polygon:
			ft.geometry = geom.MultiPolygon{t}
		case geom.MultiPolygon:
			ft.geometry = t
		default:
			return nil, fmt.Errorf("boundary: %s: %q is a %T, boundaries need to be polygons", path, ft.name, g)
		}
		features = append(features, ft)
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("boundary: %s: %w", path, err)
	}
	return features, nil
}
