package adjacency

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// WriteTo writes the graph in INLA adjacency format: the region count on the
// first line, then for each region "index count n1 n2 ...", with 1-based
// indices and neighbours ascending.
func (g *Graph) WriteTo(w io.Writer) (int64, error) {
	b := bufio.NewWriter(w)
	var written int64
	n, err := fmt.Fprintf(b, "%d\n", g.Len())
	written += int64(n)
	if err != nil {
		return written, err
	}
	for i, ns := range g.neighbours {
		var line strings.Builder
		line.WriteString(strconv.Itoa(i + 1))
		line.WriteByte(' ')
		line.WriteString(strconv.Itoa(len(ns)))
		for _, j := range ns {
			line.WriteByte(' ')
			line.WriteString(strconv.Itoa(j + 1))
		}
		line.WriteByte('\n')
		n, err := b.WriteString(line.String())
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, b.Flush()
}

func (g *Graph) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := g.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("adjacency: %s: %w", path, err)
	}
	return f.Close()
}

// Parse reads a graph written by WriteTo, or by R's nb2INLA. Region lines
// may come in any order but each region must appear exactly once.
func Parse(r io.Reader) (*Graph, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	next := func() ([]string, bool) {
		for s.Scan() {
			line++
			if fields := strings.Fields(s.Text()); len(fields) > 0 {
				return fields, true
			}
		}
		return nil, false
	}

	fields, ok := next()
	if !ok {
		if err := s.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("adjacency: empty graph file")
	}
	if len(fields) != 1 {
		return nil, fmt.Errorf("adjacency: line %d: expected region count, found %q", line, s.Text())
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("adjacency: line %d: bad region count %q", line, fields[0])
	}

	g := New(n)
	seen := make([]bool, n)
	for {
		fields, ok := next()
		if !ok {
			break
		}
		values := make([]int, len(fields))
		for k, f := range fields {
			if values[k], err = strconv.Atoi(f); err != nil {
				return nil, fmt.Errorf("adjacency: line %d: bad integer %q", line, f)
			}
		}
		if len(values) < 2 {
			return nil, fmt.Errorf("adjacency: line %d: expected index and count", line)
		}
		i, count := values[0]-1, values[1]
		if i < 0 || i >= n {
			return nil, fmt.Errorf("adjacency: line %d: region %d out of range 1..%d", line, i+1, n)
		}
		if seen[i] {
			return nil, fmt.Errorf("adjacency: line %d: region %d listed twice", line, i+1)
		}
		seen[i] = true
		if count != len(values)-2 {
			return nil, fmt.Errorf("adjacency: line %d: region %d declares %d neighbours, lists %d", line, i+1, count, len(values)-2)
		}
		ns := make([]int, 0, count)
		for _, j := range values[2:] {
			if j < 1 || j > n {
				return nil, fmt.Errorf("adjacency: line %d: neighbour %d out of range 1..%d", line, j, n)
			}
			ns = append(ns, j-1)
		}
		sort.Ints(ns)
		for k := 1; k < len(ns); k++ {
			if ns[k] == ns[k-1] {
				return nil, fmt.Errorf("adjacency: line %d: neighbour %d repeated", line, ns[k]+1)
			}
		}
		g.neighbours[i] = ns
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("adjacency: region %d missing", i+1)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func ReadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}
