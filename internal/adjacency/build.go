package adjacency

import (
	"fmt"
	"math"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/golang/geo/s1"
	"github.com/golang/geo/s2"
)

const (
	EarthRadiusMeters  = 6371.01 * 1000.0
	DefaultSnapMeters  = 1.0
	metersPerDegreeLat = math.Pi * EarthRadiusMeters / 180.0

	// minTolerance keeps search boxes of axis aligned edges non degenerate.
	minTolerance = 1e-9
)

func MetersToAngle(m float64) s1.Angle {
	return s1.Angle(m / EarthRadiusMeters)
}

// indexedShape is a region's geometry with the precomputed edges used by
// the exact predicate.
type indexedShape struct {
	geom.MultiPolygon
	index int
	edges *rtree.Rtree
	// tolerance is the snap distance in degrees, widened for longitude at the
	// shape's highest latitude.
	tolerance float64
}

type edge struct {
	geom.LineString
	a, b s2.Point
}

func toS2(p geom.Point) s2.Point {
	return s2.PointFromLatLng(s2.LatLngFromDegrees(p.Y, p.X))
}

func newIndexedShape(index int, mp geom.MultiPolygon, snapMeters float64) (*indexedShape, error) {
	s := &indexedShape{MultiPolygon: mp, index: index, edges: rtree.NewTree(25, 50)}
	if len(mp) == 0 {
		return nil, fmt.Errorf("adjacency: region %d has no geometry", index)
	}
	b := mp.Bounds()
	lat := math.Max(math.Abs(b.Min.Y), math.Abs(b.Max.Y))
	s.tolerance = snapMeters/(metersPerDegreeLat*math.Max(math.Cos(lat*math.Pi/180.0), 0.01)) + minTolerance
	vertices := 0
	for _, polygon := range mp {
		for _, ring := range polygon {
			vertices += len(ring)
			for k, p := range ring {
				q := ring[(k+1)%len(ring)]
				if p == q {
					continue
				}
				s.edges.Insert(&edge{LineString: geom.LineString{p, q}, a: toS2(p), b: toS2(q)})
			}
		}
	}
	if vertices == 0 {
		return nil, fmt.Errorf("adjacency: region %d has no vertices", index)
	}
	return s, nil
}

func expand(b *geom.Bounds, by float64) *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: b.Min.X - by, Y: b.Min.Y - by},
		Max: geom.Point{X: b.Max.X + by, Y: b.Max.Y + by},
	}
}

// Build returns the queen contiguity graph of shapes: regions i and j are
// neighbours when their boundaries touch or overlap, allowing gaps of up to
// snapMeters between boundaries digitised separately. Shapes are lng/lat
// multipolygons indexed by registry order.
func Build(shapes []geom.MultiPolygon, snapMeters float64) (*Graph, error) {
	if snapMeters < 0 {
		return nil, fmt.Errorf("adjacency: negative snap distance %f", snapMeters)
	}
	indexed := make([]*indexedShape, len(shapes))
	tree := rtree.NewTree(25, 50)
	for i, mp := range shapes {
		s, err := newIndexedShape(i, mp, snapMeters)
		if err != nil {
			return nil, err
		}
		indexed[i] = s
		tree.Insert(s)
	}

	g := New(len(shapes))
	snap := MetersToAngle(snapMeters)
	for _, a := range indexed {
		for _, candidate := range tree.SearchIntersect(expand(a.Bounds(), a.tolerance)) {
			b := candidate.(*indexedShape)
			if b.index <= a.index || g.HasEdge(a.index, b.index) {
				continue
			}
			if touches(a, b, snap) {
				if err := g.AddEdge(a.index, b.index); err != nil {
					return nil, err
				}
			}
		}
	}
	return g, nil
}

func touches(a, b *indexedShape, snap s1.Angle) bool {
	return near(a, b, snap) || near(b, a, snap) || crosses(a, b) || inside(a, b) || inside(b, a)
}

// near reports whether any vertex of a lies within snap of an edge of b.
func near(a, b *indexedShape, snap s1.Angle) bool {
	tolerance := math.Max(a.tolerance, b.tolerance)
	for _, polygon := range a.MultiPolygon {
		for _, ring := range polygon {
			for _, p := range ring {
				v := toS2(p)
				box := expand(&geom.Bounds{Min: p, Max: p}, tolerance)
				for _, e := range b.edges.SearchIntersect(box) {
					e := e.(*edge)
					if s2.DistanceFromSegment(v, e.a, e.b) <= snap {
						return true
					}
				}
			}
		}
	}
	return false
}

// crosses reports whether an edge of a properly crosses an edge of b.
func crosses(a, b *indexedShape) bool {
	for _, ea := range a.edges.SearchIntersect(expand(b.Bounds(), a.tolerance)) {
		ea := ea.(*edge)
		for _, eb := range b.edges.SearchIntersect(expand(ea.Bounds(), a.tolerance)) {
			eb := eb.(*edge)
			if s2.CrossingSign(ea.a, ea.b, eb.a, eb.b) == s2.Cross {
				return true
			}
		}
	}
	return false
}

// inside reports whether the first vertex of a lies within b, which catches
// a region entirely enclosed by another.
func inside(a, b *indexedShape) bool {
	for _, polygon := range a.MultiPolygon {
		for _, ring := range polygon {
			if len(ring) > 0 {
				return contains(b.MultiPolygon, ring[0])
			}
		}
	}
	return false
}

// contains is an even-odd test in the lng/lat plane, so holes are excluded.
func contains(mp geom.MultiPolygon, p geom.Point) bool {
	for _, polygon := range mp {
		in := false
		for _, ring := range polygon {
			for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
				pi, pj := ring[i], ring[j]
				if (pi.Y > p.Y) != (pj.Y > p.Y) && p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
					in = !in
				}
			}
		}
		if in {
			return true
		}
	}
	return false
}
