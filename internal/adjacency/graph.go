// Package adjacency builds the undirected neighbour graph between regions and
// reads and writes it in the INLA adjacency text format.
package adjacency

import (
	"errors"
	"fmt"
	"sort"
)

// ErrAsymmetric is returned when a graph lists j as a neighbour of i but not
// i as a neighbour of j.
var ErrAsymmetric = errors.New("adjacency: graph is not symmetric")

// Graph is an undirected graph over region indices 0..Len()-1, without self
// loops. Neighbour lists are kept sorted.
type Graph struct {
	neighbours [][]int
}

func New(n int) *Graph {
	return &Graph{neighbours: make([][]int, n)}
}

func (g *Graph) Len() int {
	return len(g.neighbours)
}

// AddEdge adds the undirected edge a-b. Adding an existing edge is a no-op.
func (g *Graph) AddEdge(a, b int) error {
	if a < 0 || a >= g.Len() || b < 0 || b >= g.Len() {
		return fmt.Errorf("adjacency: edge %d-%d out of range for %d regions", a, b, g.Len())
	}
	if a == b {
		return fmt.Errorf("adjacency: self loop on %d", a)
	}
	g.neighbours[a] = insert(g.neighbours[a], b)
	g.neighbours[b] = insert(g.neighbours[b], a)
	return nil
}

func insert(ns []int, n int) []int {
	i := sort.SearchInts(ns, n)
	if i < len(ns) && ns[i] == n {
		return ns
	}
	ns = append(ns, 0)
	copy(ns[i+1:], ns[i:])
	ns[i] = n
	return ns
}

// Neighbours returns the ascending neighbours of i.
func (g *Graph) Neighbours(i int) []int {
	ns := make([]int, len(g.neighbours[i]))
	copy(ns, g.neighbours[i])
	return ns
}

func (g *Graph) Degree(i int) int {
	return len(g.neighbours[i])
}

func (g *Graph) HasEdge(a, b int) bool {
	ns := g.neighbours[a]
	i := sort.SearchInts(ns, b)
	return i < len(ns) && ns[i] == b
}

// Edges returns every edge once, as ascending pairs in ascending order.
func (g *Graph) Edges() [][2]int {
	var edges [][2]int
	for a, ns := range g.neighbours {
		for _, b := range ns {
			if a < b {
				edges = append(edges, [2]int{a, b})
			}
		}
	}
	return edges
}

// Isolated returns the regions without neighbours.
func (g *Graph) Isolated() []int {
	var isolated []int
	for i, ns := range g.neighbours {
		if len(ns) == 0 {
			isolated = append(isolated, i)
		}
	}
	return isolated
}

// Components returns the connected components, each ascending, ordered by
// their smallest member.
func (g *Graph) Components() [][]int {
	seen := make([]bool, g.Len())
	var components [][]int
	for start := range g.neighbours {
		if seen[start] {
			continue
		}
		seen[start] = true
		component := []int{start}
		queue := []int{start}
		for len(queue) > 0 {
			i := queue[0]
			queue = queue[1:]
			for _, j := range g.neighbours[i] {
				if !seen[j] {
					seen[j] = true
					component = append(component, j)
					queue = append(queue, j)
				}
			}
		}
		sort.Ints(component)
		components = append(components, component)
	}
	return components
}

func (g *Graph) Connected() bool {
	return len(g.Components()) <= 1
}

// Validate checks ranges, self loops, ordering and symmetry.
func (g *Graph) Validate() error {
	for i, ns := range g.neighbours {
		for k, j := range ns {
			if j < 0 || j >= g.Len() {
				return fmt.Errorf("adjacency: region %d has neighbour %d out of range", i, j)
			}
			if j == i {
				return fmt.Errorf("adjacency: self loop on %d", i)
			}
			if k > 0 && ns[k-1] >= j {
				return fmt.Errorf("adjacency: neighbours of %d not strictly ascending", i)
			}
			if !g.HasEdge(j, i) {
				return fmt.Errorf("%w: %d lists %d but not the reverse", ErrAsymmetric, i, j)
			}
		}
	}
	return nil
}
