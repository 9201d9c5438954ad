// Package identity derives the coarse composite key used to match
// likely-duplicate listings across sources. The key is a readable
// bucketing token, not a cryptographic hash: collisions between
// genuinely distinct units are an accepted cost of recall.
package identity

import (
	"fmt"
	"regexp"
	"strings"

	"imoagg/extract"
)

// missingFloorToken renders a listing with no known floor. It must
// stay distinct from "et0" (ground floor).
const missingFloorToken = "etx"

var nonAlnumRegex = regexp.MustCompile(`[^a-z0-9]+`)

// Generator builds fingerprints for one city's listings. The city name
// is stripped from neighborhood text before the zone token is taken.
type Generator struct {
	city string
}

func NewGenerator(city string) *Generator {
	return &Generator{city: extract.Fold(city)}
}

// Fingerprint returns e.g. "pacurari_2cam_et3_54mp". It is a
// deterministic function of its inputs and never changes once a
// record is created. Surface is truncated to the even bucket below so
// that postings differing by one square metre still collide.
func (g *Generator) Fingerprint(neighborhood string, rooms, floor *int, sqm float64) string {
	zone := g.ZoneToken(neighborhood)

	nRooms := 0
	if rooms != nil {
		nRooms = *rooms
	}

	floorToken := missingFloorToken
	if floor != nil {
		floorToken = fmt.Sprintf("et%d", *floor)
	}

	bucket := (int(sqm) / 2) * 2

	return fmt.Sprintf("%s_%dcam_%s_%dmp", zone, nRooms, floorToken, bucket)
}

// ZoneToken normalizes neighborhood text to a single lower-case word:
// diacritics folded, the city name removed, first remaining word kept.
func (g *Generator) ZoneToken(neighborhood string) string {
	n := extract.Fold(neighborhood)
	n = nonAlnumRegex.ReplaceAllString(n, " ")

	for _, word := range strings.Fields(n) {
		if word == g.city {
			continue
		}
		return word
	}
	return g.city
}
