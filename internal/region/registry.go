// Package region binds canonical administrative regions to their boundary
// geometry and joins tabular case data onto them by name or ISO code.
package region

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ctessum/geom"

	"diagonal.works/ksa-disease-mapping/internal/boundary"
)

// ErrNotBijective is returned when provider boundaries and the canonical
// region list do not correspond one to one.
var ErrNotBijective = errors.New("region: boundaries do not match canonical regions one to one")

type Region struct {
	// Index is the position in the registry, and the node id used by the
	// neighbour graph and inference engines.
	Index    int
	Code     Code
	Name     string
	Geometry geom.MultiPolygon
}

// Registry is the immutable, alphabetically ordered list of regions.
type Registry struct {
	regions  []Region
	byCode   map[Code]int
	resolver *Resolver
}

// NewRegistry resolves every provider boundary, by its code when present and
// otherwise by name, and checks that the result is a bijection with the
// resolver's canonical list. Provider ordering is irrelevant.
func NewRegistry(boundaries []boundary.Boundary, resolver *Resolver) (*Registry, error) {
	var unresolved, duplicated []string
	seen := make(map[Code]string)
	regions := make([]Region, 0, len(boundaries))
	for _, b := range boundaries {
		code, ok := resolver.Resolve(b.Code)
		if !ok {
			code, ok = resolver.Resolve(b.Name)
		}
		if !ok {
			unresolved = append(unresolved, b.Name)
			continue
		}
		if previous, ok := seen[code]; ok {
			duplicated = append(duplicated, fmt.Sprintf("%s and %s as %s", previous, b.Name, code))
			continue
		}
		seen[code] = b.Name
		c, _ := resolver.Canonical(code)
		regions = append(regions, Region{Code: code, Name: c.Name, Geometry: b.Geometry})
	}
	var missing []string
	for _, c := range resolver.canonical {
		if _, ok := seen[c.Code]; !ok {
			missing = append(missing, c.Name)
		}
	}
	if len(unresolved) > 0 || len(duplicated) > 0 || len(missing) > 0 {
		var parts []string
		if len(unresolved) > 0 {
			parts = append(parts, "unresolved: "+strings.Join(unresolved, ", "))
		}
		if len(duplicated) > 0 {
			parts = append(parts, "duplicated: "+strings.Join(duplicated, ", "))
		}
		if len(missing) > 0 {
			parts = append(parts, "missing: "+strings.Join(missing, ", "))
		}
		return nil, fmt.Errorf("%w (%s)", ErrNotBijective, strings.Join(parts, "; "))
	}

	sort.Slice(regions, func(i, j int) bool { return regions[i].Name < regions[j].Name })
	r := &Registry{regions: regions, byCode: make(map[Code]int, len(regions)), resolver: resolver}
	for i := range r.regions {
		r.regions[i].Index = i
		r.byCode[r.regions[i].Code] = i
	}
	return r, nil
}

func (r *Registry) Len() int {
	return len(r.regions)
}

func (r *Registry) Region(i int) Region {
	return r.regions[i]
}

// Regions returns a copy of the ordered regions.
func (r *Registry) Regions() []Region {
	regions := make([]Region, len(r.regions))
	copy(regions, r.regions)
	return regions
}

// Lookup returns the registry index of a name or code in any known spelling.
func (r *Registry) Lookup(name string) (int, bool) {
	code, ok := r.resolver.Resolve(name)
	if !ok {
		return -1, false
	}
	i, ok := r.byCode[code]
	return i, ok
}

// Names returns region names in registry order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.regions))
	for i, region := range r.regions {
		names[i] = region.Name
	}
	return names
}

// Boundaries returns the registry as boundaries with canonical names and
// codes, for writing GeoJSON output.
func (r *Registry) Boundaries() []boundary.Boundary {
	boundaries := make([]boundary.Boundary, len(r.regions))
	for i, region := range r.regions {
		boundaries[i] = boundary.Boundary{Name: region.Name, Code: string(region.Code), Geometry: region.Geometry}
	}
	return boundaries
}
