// Package casedata reads per-region case counts and population from CSV.
package casedata

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"diagonal.works/ksa-disease-mapping/internal/logging"
	"diagonal.works/ksa-disease-mapping/internal/optional"
)

const (
	DefaultRegionColumn     = "Region"
	DefaultPopulationColumn = "Population"
)

// Columns names the header cells to read. Observed is usually the disease
// name, eg "Cancer" or "Diabetes". When Strata is set, the per-stratum columns
// are read and the totals are their sums.
type Columns struct {
	Region     string
	Observed   string
	Population string
	Strata     []StratumColumns
}

type StratumColumns struct {
	Name       string
	Observed   string
	Population string
}

type Counts struct {
	Observed   optional.Int
	Population optional.Int
}

type Row struct {
	Line   int
	Name   string
	Counts
	Strata []Counts
}

// Summary counts the rows read and the cells that could not be used.
type Summary struct {
	Rows          int
	BadObserved   int
	BadPopulation int
	Blank         int
}

// Read reads a CSV file, transparently decompressing names ending in .gz.
func Read(path string, columns Columns) ([]Row, Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Summary{}, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		g, err := gzip.NewReader(f)
		if err != nil {
			return nil, Summary{}, err
		}
		defer g.Close()
		r = g
	}
	rows, summary, err := Parse(r, columns)
	if err != nil {
		return nil, summary, fmt.Errorf("casedata: %s: %w", path, err)
	}
	logging.Info().
		Str("path", path).
		Int("rows", summary.Rows).
		Int("bad_observed", summary.BadObserved).
		Int("bad_population", summary.BadPopulation).
		Int("blank", summary.Blank).
		Msg("read case data")
	return rows, summary, nil
}

func Parse(input io.Reader, columns Columns) ([]Row, Summary, error) {
	var summary Summary
	r := csv.NewReader(input)
	r.Comment = '#'
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, summary, fmt.Errorf("empty file")
	} else if err != nil {
		return nil, summary, err
	}
	index := make(map[string]int)
	for i, h := range header {
		index[headerKey(h)] = i
	}
	lookup := func(name string) (int, error) {
		if i, ok := index[headerKey(name)]; ok {
			return i, nil
		}
		return -1, fmt.Errorf("no %q column in header %q", name, header)
	}

	regionColumn, err := lookup(columns.Region)
	if err != nil {
		return nil, summary, err
	}
	type pair struct{ observed, population int }
	var pairs []pair
	if len(columns.Strata) == 0 {
		o, err := lookup(columns.Observed)
		if err != nil {
			return nil, summary, err
		}
		p, err := lookup(columns.Population)
		if err != nil {
			return nil, summary, err
		}
		pairs = append(pairs, pair{o, p})
	} else {
		for _, s := range columns.Strata {
			o, err := lookup(s.Observed)
			if err != nil {
				return nil, summary, fmt.Errorf("stratum %s: %w", s.Name, err)
			}
			p, err := lookup(s.Population)
			if err != nil {
				return nil, summary, fmt.Errorf("stratum %s: %w", s.Name, err)
			}
			pairs = append(pairs, pair{o, p})
		}
	}

	var rows []Row
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, summary, err
		}
		line, _ := r.FieldPos(0)
		name := strings.TrimSpace(cell(record, regionColumn))
		if name == "" {
			summary.Blank++
			continue
		}
		summary.Rows++
		row := Row{Line: line, Name: name}
		counts := make([]Counts, len(pairs))
		for i, p := range pairs {
			counts[i].Observed = parseCount(cell(record, p.observed))
			if !counts[i].Observed.OK() {
				summary.BadObserved++
			}
			counts[i].Population = parseCount(cell(record, p.population))
			if !counts[i].Population.OK() {
				summary.BadPopulation++
			}
		}
		if len(columns.Strata) == 0 {
			row.Counts = counts[0]
		} else {
			row.Strata = counts
			row.Counts = Total(counts)
		}
		rows = append(rows, row)
	}
	return rows, summary, nil
}

// Total sums strata, absent if any stratum value is absent.
func Total(strata []Counts) Counts {
	var observed, population int64
	okObserved, okPopulation := true, true
	for _, s := range strata {
		if v, ok := s.Observed.Get(); ok {
			observed += v
		} else {
			okObserved = false
		}
		if v, ok := s.Population.Get(); ok {
			population += v
		} else {
			okPopulation = false
		}
	}
	var total Counts
	if okObserved {
		total.Observed = optional.Some(observed)
	}
	if okPopulation {
		total.Population = optional.Some(population)
	}
	return total
}

func headerKey(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}

// parseCount accepts thousands separators and integral decimals ("1,204",
// "37.0"). Anything else, including negative counts, is absent.
func parseCount(s string) optional.Int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return optional.None[int64]()
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		if v < 0 {
			return optional.None[int64]()
		}
		return optional.Some(v)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return optional.None[int64]()
	}
	return optional.Some(int64(f))
}
