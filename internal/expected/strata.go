package expected

import (
	"fmt"
	"strings"

	"diagonal.works/ksa-disease-mapping/internal/casedata"
)

type AgeRange struct {
	Begin int
	End   int // Exclusive, 0 for open ended
}

func (a AgeRange) Contains(age int) bool {
	return age >= a.Begin && (age < a.End || a.End == 0)
}

func (a AgeRange) String() string {
	if a.End > 0 {
		return fmt.Sprintf("%d-%d", a.Begin, a.End-1)
	}
	return fmt.Sprintf("%d+", a.Begin)
}

// AgeRanges splits ages at the given boundaries, eg [15, 45, 65] gives
// 0-14, 15-44, 45-64 and 65+.
func AgeRanges(boundaries []int) ([]AgeRange, error) {
	var ranges []AgeRange
	begin := 0
	for _, b := range boundaries {
		if b <= begin {
			return nil, fmt.Errorf("expected: age boundaries must be increasing and positive, got %v", boundaries)
		}
		ranges = append(ranges, AgeRange{Begin: begin, End: b})
		begin = b
	}
	return append(ranges, AgeRange{Begin: begin}), nil
}

type Sex int

const (
	Male Sex = iota
	Female
	AnySex
)

func (s Sex) String() string {
	switch s {
	case Male:
		return "m"
	case Female:
		return "f"
	}
	return ""
}

// Stratum is one cell of the age by sex table.
type Stratum struct {
	Sex  Sex
	Ages AgeRange
}

// Label is the column suffix for the stratum, eg "m_45-64" or "75+".
func (s Stratum) Label() string {
	if s.Sex == AnySex {
		return s.Ages.String()
	}
	return s.Sex.String() + "_" + s.Ages.String()
}

// AgeSexStrata crosses the age ranges with the sexes, sex major.
func AgeSexStrata(ranges []AgeRange, bySex bool) []Stratum {
	sexes := []Sex{AnySex}
	if bySex {
		sexes = []Sex{Male, Female}
	}
	var strata []Stratum
	for _, sex := range sexes {
		for _, r := range ranges {
			strata = append(strata, Stratum{Sex: sex, Ages: r})
		}
	}
	return strata
}

// Columns names the case data columns of each stratum as
// "<observed>_<label>" and "<population>_<label>", eg Cancer_f_15-44 and
// Population_f_15-44.
func Columns(observed, population string, strata []Stratum) []casedata.StratumColumns {
	columns := make([]casedata.StratumColumns, len(strata))
	for i, s := range strata {
		label := s.Label()
		columns[i] = casedata.StratumColumns{
			Name:       label,
			Observed:   observed + "_" + label,
			Population: population + "_" + label,
		}
	}
	return columns
}

// Labels returns the stratum names of columns, for Estimate.
func Labels(columns []casedata.StratumColumns) []string {
	labels := make([]string, len(columns))
	for i, c := range columns {
		labels[i] = strings.TrimSpace(c.Name)
	}
	return labels
}
