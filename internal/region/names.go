package region

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Code is an ISO 3166-2 subdivision code, eg SA-01.
type Code string

func (c Code) String() string {
	return string(c)
}

// Canonical describes one region in the canonical list: its code, display
// name and every spelling seen across boundary providers and case data.
type Canonical struct {
	Code    Code
	HASC    string
	Name    string
	Aliases []string
}

// SaudiArabia lists the 13 first-level regions. Aliases cover GADM level 1
// names, Natural Earth names, ISO transliterations and the spellings used in
// Ministry of Health tables.
var SaudiArabia = []Canonical{
	{Code: "SA-01", HASC: "SA.RI", Name: "Riyadh", Aliases: []string{"Ar Riyad", "Ar Riyāḑ", "Riyad", "Er Riad"}},
	{Code: "SA-02", HASC: "SA.MK", Name: "Makkah", Aliases: []string{"Makkah al Mukarramah", "Mecca", "Makkah Al-Mukarramah", "Makka"}},
	{Code: "SA-03", HASC: "SA.MD", Name: "Al Madinah", Aliases: []string{"Al Madīnah al Munawwarah", "Madinah", "Medina", "Al Madinah al Munawwarah", "Madina"}},
	{Code: "SA-04", HASC: "SA.SH", Name: "Eastern Province", Aliases: []string{"Ash Sharqiyah", "Ash Sharqīyah", "Eastern", "Sharqia", "Al Sharqiyah"}},
	{Code: "SA-05", HASC: "SA.QS", Name: "Al Qassim", Aliases: []string{"Al Quassim", "Al Qaşīm", "Qassim", "Al Qasim", "Gassim"}},
	{Code: "SA-06", HASC: "SA.HA", Name: "Hail", Aliases: []string{"Ha'il", "Ḩā'il", "Hayil"}},
	{Code: "SA-07", HASC: "SA.TB", Name: "Tabuk", Aliases: []string{"Tabūk", "Tabouk"}},
	{Code: "SA-08", HASC: "SA.HS", Name: "Northern Borders", Aliases: []string{"Al Hudud ash Shamaliyah", "Al Ḩudūd ash Shamālīyah", "Northern Frontier", "Al Hudud Al Shamaliyah"}},
	{Code: "SA-09", HASC: "SA.JZ", Name: "Jazan", Aliases: []string{"Jizan", "Jāzān", "Gizan", "Jaizan"}},
	{Code: "SA-10", HASC: "SA.NJ", Name: "Najran", Aliases: []string{"Najrān"}},
	{Code: "SA-11", HASC: "SA.BA", Name: "Al Bahah", Aliases: []string{"Al Bāḩah", "Baha", "Al Baha", "Bahah"}},
	{Code: "SA-12", HASC: "SA.JF", Name: "Al Jawf", Aliases: []string{"Al Jouf", "Jouf", "Jawf", "Al Jauf"}},
	{Code: "SA-14", HASC: "SA.AS", Name: "Asir", Aliases: []string{"'Asir", "ʿAsīr", "Aseer", "Assir"}},
}

var (
	articles    = map[string]bool{"al": true, "ar": true, "as": true, "ash": true, "ad": true, "at": true, "az": true, "an": true, "el": true, "er": true}
	designators = map[string]bool{"region": true, "province": true, "emirate": true, "principality": true, "governorate": true}
	apostrophes = strings.NewReplacer("'", "", "’", "", "‘", "", "`", "", "ʿ", "", "ʾ", "")
)

// Normalize folds a region name to a comparison key: diacritics and
// apostrophes removed, lower case, punctuation as spaces, a leading Arabic
// article and trailing administrative designators dropped.
func Normalize(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(apostrophes.Replace(folded))
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for len(words) > 1 && designators[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	if len(words) > 1 && articles[words[0]] {
		words = words[1:]
	}
	return strings.Join(words, " ")
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Resolver maps provider and case-data spellings to canonical codes.
type Resolver struct {
	canonical []Canonical
	byKey     map[string]Code
	byCode    map[Code]Canonical
}

// NewResolver builds a resolver, failing if two canonical regions share a
// normalised spelling.
func NewResolver(canonical []Canonical) (*Resolver, error) {
	r := &Resolver{
		canonical: canonical,
		byKey:     make(map[string]Code),
		byCode:    make(map[Code]Canonical),
	}
	add := func(key string, code Code) error {
		if key == "" {
			return nil
		}
		if existing, ok := r.byKey[key]; ok && existing != code {
			return fmt.Errorf("region: %q is ambiguous between %s and %s", key, existing, code)
		}
		r.byKey[key] = code
		return nil
	}
	for _, c := range canonical {
		if _, ok := r.byCode[c.Code]; ok {
			return nil, fmt.Errorf("region: duplicate code %s", c.Code)
		}
		r.byCode[c.Code] = c
		if err := add(normalizeCode(string(c.Code)), c.Code); err != nil {
			return nil, err
		}
		if err := add(normalizeCode(c.HASC), c.Code); err != nil {
			return nil, err
		}
		for _, name := range append([]string{c.Name}, c.Aliases...) {
			if err := add(Normalize(name), c.Code); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Resolve returns the code for an ISO code, HASC code or any known spelling.
func (r *Resolver) Resolve(name string) (Code, bool) {
	if c, ok := r.byKey[normalizeCode(name)]; ok {
		return c, true
	}
	c, ok := r.byKey[Normalize(name)]
	return c, ok
}

func (r *Resolver) Canonical(code Code) (Canonical, bool) {
	c, ok := r.byCode[code]
	return c, ok
}

func (r *Resolver) Len() int {
	return len(r.canonical)
}
