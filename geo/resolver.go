// Package geo resolves zone names to coordinates. Resolution is
// best-effort: a named-zone hit is precise, a geocoder hit is coarser,
// and the city centroid is the last resort. Every fallback point gets
// randomized jitter so listings do not stack on one map pixel, with a
// radius that grows as confidence drops.
package geo

import (
	"context"
	"math/rand"
	"strings"

	"github.com/mmcloughlin/geohash"

	"imoagg/extract"
)

type Point struct {
	Lat float64
	Lng float64
}

// Precision records how a point was resolved.
type Precision int

const (
	PrecisionExact    Precision = iota // coordinates came from the source
	PrecisionZone                      // named-zone table hit
	PrecisionGeocoded                  // external geocoder hit
	PrecisionCity                      // city centroid fallback
)

func (p Precision) String() string {
	switch p {
	case PrecisionExact:
		return "exact"
	case PrecisionZone:
		return "zone"
	case PrecisionGeocoded:
		return "geocoded"
	default:
		return "city"
	}
}

// Jitter radii in degrees per precision level. Roughly 400 m for a
// zone hit, 2 km for the centroid fallback.
var jitterRadius = map[Precision]float64{
	PrecisionExact:    0,
	PrecisionZone:     0.004,
	PrecisionGeocoded: 0.008,
	PrecisionCity:     0.02,
}

// Geocoder is an external name-to-coordinates lookup. Implementations
// are expected to rate-limit themselves.
type Geocoder interface {
	Lookup(ctx context.Context, query string) (Point, bool)
}

// Resolver maps zone names in ad text to coordinates. The zone table
// and centroid are fixed at construction; the random source is
// injected so tests can seed it.
type Resolver struct {
	centroid Point
	zones    map[string]Point
	geocoder Geocoder
	rng      *rand.Rand
}

// NewResolver builds a resolver over a zone table keyed by zone name
// (any spelling; keys are folded). geocoder may be nil.
func NewResolver(centroid Point, zones map[string]Point, geocoder Geocoder, rng *rand.Rand) *Resolver {
	folded := make(map[string]Point, len(zones))
	for name, p := range zones {
		folded[extract.Fold(name)] = p
	}
	return &Resolver{centroid: centroid, zones: folded, geocoder: geocoder, rng: rng}
}

// Resolve finds coordinates for a candidate: a zone named in the
// title, then the stated neighborhood, then the geocoder, then the
// city centroid. The returned point already carries jitter.
func (r *Resolver) Resolve(ctx context.Context, title, neighborhood string) (Point, Precision) {
	if p, ok := r.zoneFromText(title); ok {
		return r.Jitter(p, PrecisionZone), PrecisionZone
	}
	if p, ok := r.zoneFromText(neighborhood); ok {
		return r.Jitter(p, PrecisionZone), PrecisionZone
	}
	if r.geocoder != nil && strings.TrimSpace(neighborhood) != "" {
		if p, ok := r.geocoder.Lookup(ctx, neighborhood); ok {
			return r.Jitter(p, PrecisionGeocoded), PrecisionGeocoded
		}
	}
	return r.Jitter(r.centroid, PrecisionCity), PrecisionCity
}

// Jitter displaces a point by a uniform offset within the radius for
// the given precision.
func (r *Resolver) Jitter(p Point, prec Precision) Point {
	radius := jitterRadius[prec]
	if radius == 0 {
		return p
	}
	return Point{
		Lat: p.Lat + (r.rng.Float64()-0.5)*2*radius,
		Lng: p.Lng + (r.rng.Float64()-0.5)*2*radius,
	}
}

func (r *Resolver) zoneFromText(text string) (Point, bool) {
	t := extract.Fold(text)
	if t == "" {
		return Point{}, false
	}
	if p, ok := r.zones[strings.TrimSpace(t)]; ok {
		return p, true
	}
	for name, p := range r.zones {
		if strings.Contains(t, name) {
			return p, true
		}
	}
	return Point{}, false
}

// Hash returns the geohash tag stored next to the point geometry.
// Nine characters is under 5 m of cell size, plenty for map grouping.
func Hash(p Point) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lng, 9)
}
