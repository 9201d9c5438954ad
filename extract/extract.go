// Package extract turns free-form Romanian ad text into structured
// listing attributes. Every rule is a bounded heuristic: a field that
// does not match is left nil so callers can apply their own fallback,
// and no input ever produces an error.
package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// Details is a partial attribute set. Nil / empty means "not found",
// never a default.
type Details struct {
	Rooms     *int
	Floor     *int
	YearBuilt *int
	Layout    string
	SqM       *float64
}

const (
	minYear  = 1900
	maxYear  = 2029
	minSqM   = 10
	maxSqM   = 500
	maxFloor = 30
)

var (
	roomsRegex     = regexp.MustCompile(`(\d{1,2})\s*cam(?:er[ae])?\b`)
	floorRegex     = regexp.MustCompile(`etaj(?:ul)?\s*(\d{1,2})\b`)
	floorPairRegex = regexp.MustCompile(`\b(\d{1,2})\s*/\s*(\d{1,2})\b`)
	yearNearRegex  = regexp.MustCompile(`\b(?:an(?:ul)?|bloc|constructi[ae]|construit)\b\D{0,12}((?:19|20)\d{2})`)
	yearBareRegex  = regexp.MustCompile(`((?:19|20)\d{2})\b`)
	sqmRegex       = regexp.MustCompile(`(\d{2,3})(?:[.,](\d{1,2}))?\s*(?:mp|m2|m²)\b`)

	diacritics = strings.NewReplacer(
		"ă", "a", "â", "a", "î", "i",
		"ș", "s", "ş", "s", "ț", "t", "ţ", "t",
		"Ă", "a", "Â", "a", "Î", "i",
		"Ș", "s", "Ş", "s", "Ț", "t", "Ţ", "t",
	)
)

// Fold lower-cases text and strips Romanian diacritics so that rule
// patterns and fingerprint tokens see a single spelling.
func Fold(s string) string {
	return diacritics.Replace(strings.ToLower(s))
}

// Parse runs every rule over the given free text (typically the title
// concatenated with surrounding ad text).
func Parse(text string) Details {
	t := Fold(text)

	return Details{
		Rooms:     parseRooms(t),
		Floor:     parseFloor(t),
		YearBuilt: parseYear(t),
		Layout:    parseLayout(t),
		SqM:       parseSqM(t),
	}
}

func parseRooms(t string) *int {
	if strings.Contains(t, "garsonier") {
		one := 1
		return &one
	}
	m := roomsRegex.FindStringSubmatch(t)
	if m == nil {
		return nil
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n < 1 || n > 10 {
		return nil
	}
	return &n
}

func parseFloor(t string) *int {
	if strings.Contains(t, "demisol") {
		f := -1
		return &f
	}
	if strings.Contains(t, "parter") {
		f := 0
		return &f
	}
	if m := floorRegex.FindStringSubmatch(t); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n <= maxFloor {
			return &n
		}
	}
	// Bare "3/8" style: floor out of total, only plausible when the
	// first number does not exceed the second.
	if m := floorPairRegex.FindStringSubmatch(t); m != nil {
		n, err1 := strconv.Atoi(m[1])
		total, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil && n <= total && total <= maxFloor {
			return &n
		}
	}
	return nil
}

func parseYear(t string) *int {
	if m := yearNearRegex.FindStringSubmatch(t); m != nil {
		if y, err := strconv.Atoi(m[1]); err == nil && y >= minYear && y <= maxYear {
			return &y
		}
	}
	// A bare year is only trusted when it is not actually a price or a
	// surface (e.g. "55000 €" or "2023 mp" must not become a year).
	for _, m := range yearBareRegex.FindAllStringSubmatchIndex(t, -1) {
		y, err := strconv.Atoi(t[m[2]:m[3]])
		if err != nil || y < minYear || y > maxYear {
			continue
		}
		if m[2] > 0 {
			prev := t[m[2]-1]
			if prev >= '0' && prev <= '9' || prev == '.' || prev == ',' {
				continue
			}
		}
		rest := strings.TrimLeft(t[m[3]:], " ")
		if hasUnitPrefix(rest) {
			continue
		}
		return &y
	}
	return nil
}

func hasUnitPrefix(s string) bool {
	for _, unit := range []string{"€", "eur", "euro", "lei", "mp", "m2", "m²"} {
		if strings.HasPrefix(s, unit) {
			return true
		}
	}
	return false
}

func parseLayout(t string) string {
	// "semidecomandat" and "nedecomandat" both contain "decomandat";
	// the plain token has to be checked last.
	switch {
	case strings.Contains(t, "semidecomandat"):
		return "semidecomandat"
	case strings.Contains(t, "nedecomandat"):
		return "nedecomandat"
	case strings.Contains(t, "decomandat"):
		return "decomandat"
	}
	return ""
}

func parseSqM(t string) *float64 {
	m := sqmRegex.FindStringSubmatch(t)
	if m == nil {
		return nil
	}
	raw := m[1]
	if m[2] != "" {
		raw += "." + m[2]
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < minSqM || v > maxSqM {
		return nil
	}
	return &v
}
