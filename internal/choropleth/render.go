package choropleth

import (
	"bytes"
	_ "embed"
	"fmt"
	"html"
	"html/template"
	"io"
	"strconv"
	"strings"

	"diagonal.works/ksa-disease-mapping/internal/boundary"
	"diagonal.works/ksa-disease-mapping/internal/optional"
)

//go:embed page.html
var pageHTML string

var page = template.Must(template.New("page").Parse(pageHTML))

const legendStops = 5

// Layer is one attribute mapped over the regions.
type Layer struct {
	Title      string
	Boundaries []boundary.Boundary
	// Values is aligned with Boundaries.
	Values []optional.Float
	Scale  *Scale
	// Format renders a value for labels and the legend, two decimal places if
	// nil.
	Format func(float64) string
}

func (l *Layer) format(v float64) string {
	if l.Format != nil {
		return l.Format(v)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Label is the hover text of region i.
func (l *Layer) Label(i int) string {
	name := l.Boundaries[i].Name
	if v, ok := l.Values[i].Get(); ok {
		return fmt.Sprintf("%s: %s", name, l.format(v))
	}
	return name + ": no data"
}

// WriteGeoJSON writes the layer's regions with value, colour and label
// properties.
func (l *Layer) WriteGeoJSON(w io.Writer) error {
	if len(l.Values) != len(l.Boundaries) {
		return fmt.Errorf("choropleth: %d values for %d regions", len(l.Values), len(l.Boundaries))
	}
	properties := make([]map[string]any, len(l.Boundaries))
	for i := range l.Boundaries {
		properties[i] = map[string]any{
			"value":  l.Values[i],
			"colour": l.Scale.Colour(l.Values[i]),
			"label":  l.Label(i),
		}
	}
	return boundary.WriteGeoJSON(w, l.Boundaries, properties)
}

type legendStop struct {
	Colour template.CSS
}

// Render writes a standalone HTML page showing the layer on a Leaflet map.
func Render(w io.Writer, l Layer) error {
	if len(l.Boundaries) == 0 {
		return fmt.Errorf("choropleth: %s: no regions", l.Title)
	}
	if l.Scale == nil {
		return fmt.Errorf("choropleth: %s: no scale", l.Title)
	}
	var geojson bytes.Buffer
	if err := l.WriteGeoJSON(&geojson); err != nil {
		return err
	}
	stops := l.Scale.Stops(legendStops)
	gradient := make([]legendStop, len(stops))
	for i, s := range stops {
		gradient[i] = legendStop{Colour: template.CSS(s.Colour)}
	}
	return page.Execute(w, struct {
		Title   string
		GeoJSON template.JS
		Stops   []legendStop
		Missing template.CSS
		Legend  string
	}{
		Title:   l.Title,
		GeoJSON: template.JS(bytes.TrimSpace(geojson.Bytes())),
		Stops:   gradient,
		Missing: template.CSS(MissingColour),
		Legend:  l.legend(stops),
	})
}

func (l *Layer) legend(stops []Stop) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b><div class=\"bar\"></div><div class=\"ticks\">", html.EscapeString(l.Title))
	for _, s := range stops {
		fmt.Fprintf(&b, "<span>%s</span>", html.EscapeString(l.format(s.Value)))
	}
	b.WriteString("</div><div><span class=\"missing\"></span> no data</div>")
	return b.String()
}
