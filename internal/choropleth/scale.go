// Package choropleth colours regions by a value and renders them as a
// standalone Leaflet map page.
package choropleth

import (
	"fmt"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"diagonal.works/ksa-disease-mapping/internal/optional"
)

// MissingColour fills regions without a value.
const MissingColour = "#bdbdbd"

// Palette is a two colour ramp, blended in HCL so that perceived lightness
// changes evenly along the scale.
type Palette struct {
	Low  string
	High string
}

var (
	Blues   = Palette{Low: "#eff3ff", High: "#08519c"}
	Reds    = Palette{Low: "#fff5f0", High: "#a50f15"}
	Oranges = Palette{Low: "#fff5eb", High: "#a63603"}
)

// Scale maps values in [Min, Max] onto a palette.
type Scale struct {
	Min, Max  float64
	low, high colorful.Color
}

// Stop is a legend entry.
type Stop struct {
	Value  float64
	Colour string
}

// NewScale spans the present values. A domain of a single value is widened
// by one unit either side, or to [0, 1] when no value is present.
func NewScale(values []optional.Float, palette Palette) (*Scale, error) {
	low, err := colorful.Hex(palette.Low)
	if err != nil {
		return nil, fmt.Errorf("choropleth: low colour: %w", err)
	}
	high, err := colorful.Hex(palette.High)
	if err != nil {
		return nil, fmt.Errorf("choropleth: high colour: %w", err)
	}
	s := &Scale{Min: math.Inf(1), Max: math.Inf(-1), low: low, high: high}
	for _, o := range values {
		if v, ok := o.Get(); ok && !math.IsNaN(v) && !math.IsInf(v, 0) {
			s.Min = math.Min(s.Min, v)
			s.Max = math.Max(s.Max, v)
		}
	}
	switch {
	case math.IsInf(s.Min, 1):
		s.Min, s.Max = 0, 1
	case s.Min == s.Max:
		s.Min, s.Max = s.Min-1, s.Max+1
	}
	return s, nil
}

// WithDomain returns a copy of the scale over [min, max], eg [0, 1] for
// probabilities.
func (s *Scale) WithDomain(min, max float64) *Scale {
	c := *s
	c.Min, c.Max = min, max
	return &c
}

// Colour returns the hex colour of a value, MissingColour when absent.
func (s *Scale) Colour(o optional.Float) string {
	v, ok := o.Get()
	if !ok || math.IsNaN(v) {
		return MissingColour
	}
	t := (v - s.Min) / (s.Max - s.Min)
	t = math.Max(0, math.Min(1, t))
	return s.low.BlendHcl(s.high, t).Clamped().Hex()
}

// Stops returns n evenly spaced legend stops from Min to Max.
func (s *Scale) Stops(n int) []Stop {
	if n < 2 {
		n = 2
	}
	stops := make([]Stop, n)
	for i := range stops {
		v := s.Min + (s.Max-s.Min)*float64(i)/float64(n-1)
		stops[i] = Stop{Value: v, Colour: s.Colour(optional.Some(v))}
	}
	return stops
}
