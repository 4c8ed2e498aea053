package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"diagonal.works/ksa-disease-mapping/internal/boundary"
	"diagonal.works/ksa-disease-mapping/internal/choropleth"
	"diagonal.works/ksa-disease-mapping/internal/config"
	"diagonal.works/ksa-disease-mapping/internal/optional"
	"diagonal.works/ksa-disease-mapping/internal/risk"
)

var csvHeader = []string{"code", "name", "population", "observed", "expected", "smr", "relative_risk", "exceedance"}

// write renders every output into a staging directory and then moves the
// files into place.
func (r *Result) write(cfg *config.Config) ([]string, error) {
	staging, err := os.MkdirTemp(cfg.Output.Dir, ".diseasemap-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	layers, err := r.layers(cfg)
	if err != nil {
		return nil, err
	}
	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{GraphFile, func(w io.Writer) error { _, err := r.Graph.WriteTo(w); return err }},
		{RegionsCSV, r.WriteCSV},
		{RegionsGeoJSON, r.WriteGeoJSON},
		{CasesMap, func(w io.Writer) error { return choropleth.Render(w, layers[0]) }},
		{RiskMap, func(w io.Writer) error { return choropleth.Render(w, layers[1]) }},
		{ExceedanceMap, func(w io.Writer) error { return choropleth.Render(w, layers[2]) }},
	}
	for _, w := range writers {
		if err := writeFile(filepath.Join(staging, w.name), w.write); err != nil {
			return nil, fmt.Errorf("report: %s: %w", w.name, err)
		}
	}
	var files []string
	for _, w := range writers {
		path := filepath.Join(cfg.Output.Dir, w.name)
		if err := os.Rename(filepath.Join(staging, w.name), path); err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (r *Result) layers(cfg *config.Config) ([]choropleth.Layer, error) {
	boundaries := r.Registry.Boundaries()
	cases := make([]optional.Float, len(r.Table.Entries))
	for i, e := range r.Table.Entries {
		cases[i] = optional.Float64(e.Observed)
	}
	rr := risk.RelativeRisks(r.Summaries)
	exceedance := risk.Exceedances(r.Summaries)

	casesScale, err := choropleth.NewScale(cases, choropleth.Blues)
	if err != nil {
		return nil, err
	}
	rrScale, err := choropleth.NewScale(rr, choropleth.Reds)
	if err != nil {
		return nil, err
	}
	exceedanceScale, err := choropleth.NewScale(exceedance, choropleth.Oranges)
	if err != nil {
		return nil, err
	}
	return []choropleth.Layer{
		{
			Title:      fmt.Sprintf("%s: observed cases", cfg.Disease),
			Boundaries: boundaries,
			Values:     cases,
			Scale:      casesScale,
			Format:     func(v float64) string { return strconv.FormatFloat(v, 'f', 0, 64) },
		},
		{
			Title:      fmt.Sprintf("%s: relative risk", cfg.Disease),
			Boundaries: boundaries,
			Values:     rr,
			Scale:      rrScale,
		},
		{
			Title:      fmt.Sprintf("%s: P(relative risk > %s)", cfg.Disease, strconv.FormatFloat(cfg.Model.Threshold, 'g', -1, 64)),
			Boundaries: boundaries,
			Values:     exceedance,
			Scale:      exceedanceScale.WithDomain(0, 1),
		},
	}, nil
}

// WriteCSV writes one row per region in registry order. Absent values are
// empty fields.
func (r *Result) WriteCSV(w io.Writer) error {
	c := csv.NewWriter(w)
	if err := c.Write(csvHeader); err != nil {
		return err
	}
	for i, e := range r.Table.Entries {
		s := r.summary(i)
		record := []string{
			string(e.Region.Code),
			e.Region.Name,
			optional.FormatInt(e.Population),
			optional.FormatInt(e.Observed),
			optional.FormatFloat(r.Expected.Expected[i], 4),
			optional.FormatFloat(r.SMR[i], 4),
			optional.FormatFloat(s.RelativeRisk, 4),
			optional.FormatFloat(s.Exceedance, 4),
		}
		if err := c.Write(record); err != nil {
			return err
		}
	}
	c.Flush()
	return c.Error()
}

// WriteGeoJSON writes the regions with every attribute as a property, null
// when absent.
func (r *Result) WriteGeoJSON(w io.Writer) error {
	properties := make([]map[string]any, len(r.Table.Entries))
	for i, e := range r.Table.Entries {
		s := r.summary(i)
		properties[i] = map[string]any{
			"population":    e.Population,
			"observed":      e.Observed,
			"expected":      r.Expected.Expected[i],
			"smr":           r.SMR[i],
			"relative_risk": s.RelativeRisk,
			"exceedance":    s.Exceedance,
		}
	}
	return boundary.WriteGeoJSON(w, r.Registry.Boundaries(), properties)
}

func (r *Result) summary(i int) risk.Summary {
	if i < len(r.Summaries) {
		return r.Summaries[i]
	}
	return risk.Summary{}
}
