package region

import (
	"diagonal.works/ksa-disease-mapping/internal/casedata"
	"diagonal.works/ksa-disease-mapping/internal/optional"
)

// Entry is one region of the joined table. Observed and Population are
// absent when the case data had no usable row for the region.
type Entry struct {
	Region     Region
	Observed   optional.Int
	Population optional.Int
	Strata     []casedata.Counts
	// Line is the CSV line the values came from, 0 when missing.
	Line int
}

// Table is aligned with the registry: Entries[i] is region i.
type Table struct {
	Entries []Entry
}

// JoinReport lists the rows and regions that did not join cleanly.
type JoinReport struct {
	// Unmatched holds case data names that resolve to no region.
	Unmatched []string
	// Missing holds regions with no case data row.
	Missing []string
	// Duplicates holds regions with more than one row; the first row is kept.
	Duplicates []string
}

func (j JoinReport) Clean() bool {
	return len(j.Unmatched) == 0 && len(j.Missing) == 0 && len(j.Duplicates) == 0
}

// Join aligns case data rows to the registry. Neither input is modified, so
// joining the same inputs twice yields identical tables.
func Join(registry *Registry, rows []casedata.Row) (*Table, JoinReport) {
	var report JoinReport
	t := &Table{Entries: make([]Entry, registry.Len())}
	for i := range t.Entries {
		t.Entries[i].Region = registry.Region(i)
	}
	matched := make([]bool, registry.Len())
	for _, row := range rows {
		i, ok := registry.Lookup(row.Name)
		if !ok {
			report.Unmatched = append(report.Unmatched, row.Name)
			continue
		}
		if matched[i] {
			report.Duplicates = append(report.Duplicates, registry.Region(i).Name)
			continue
		}
		matched[i] = true
		e := &t.Entries[i]
		e.Observed = row.Observed
		e.Population = row.Population
		e.Line = row.Line
		if row.Strata != nil {
			e.Strata = make([]casedata.Counts, len(row.Strata))
			copy(e.Strata, row.Strata)
		}
	}
	for i, ok := range matched {
		if !ok {
			report.Missing = append(report.Missing, registry.Region(i).Name)
		}
	}
	return t, report
}

func (t *Table) Observed() []optional.Int {
	o := make([]optional.Int, len(t.Entries))
	for i, e := range t.Entries {
		o[i] = e.Observed
	}
	return o
}

func (t *Table) Population() []optional.Int {
	p := make([]optional.Int, len(t.Entries))
	for i, e := range t.Entries {
		p[i] = e.Population
	}
	return p
}

// Strata returns per-region stratum counts, treating unstratified rows as a
// single stratum. Regions without a row get as many absent strata as the
// widest row, so every region has the same number of strata.
func (t *Table) Strata() [][]casedata.Counts {
	width := 1
	for _, e := range t.Entries {
		if len(e.Strata) > width {
			width = len(e.Strata)
		}
	}
	strata := make([][]casedata.Counts, len(t.Entries))
	for i, e := range t.Entries {
		switch {
		case e.Strata != nil:
			strata[i] = e.Strata
		case width == 1:
			strata[i] = []casedata.Counts{{Observed: e.Observed, Population: e.Population}}
		default:
			strata[i] = make([]casedata.Counts, width)
		}
	}
	return strata
}
