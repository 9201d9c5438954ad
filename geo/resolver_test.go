package geo

import (
	"context"
	"math"
	"math/rand"
	"testing"
)

func testResolver(geocoder Geocoder) *Resolver {
	centroid := Point{Lat: 47.1585, Lng: 27.6014}
	zones := map[string]Point{
		"pacurari": {Lat: 47.1622, Lng: 27.5533},
		"copou":    {Lat: 47.1815, Lng: 27.5727},
	}
	return NewResolver(centroid, zones, geocoder, rand.New(rand.NewSource(1)))
}

type fakeGeocoder struct {
	point Point
	ok    bool
	calls int
}

func (g *fakeGeocoder) Lookup(ctx context.Context, query string) (Point, bool) {
	g.calls++
	return g.point, g.ok
}

func TestResolveZoneFromTitle(t *testing.T) {
	r := testResolver(nil)

	p, prec := r.Resolve(context.Background(), "Apartament 2 camere Păcurari", "")
	if prec != PrecisionZone {
		t.Fatalf("precision = %v, want zone", prec)
	}
	if math.Abs(p.Lat-47.1622) > 0.004 || math.Abs(p.Lng-27.5533) > 0.004 {
		t.Fatalf("point %v outside zone jitter radius", p)
	}
}

func TestResolveZoneFromNeighborhood(t *testing.T) {
	r := testResolver(nil)

	p, prec := r.Resolve(context.Background(), "Apartament superb", "Copou")
	if prec != PrecisionZone {
		t.Fatalf("precision = %v, want zone", prec)
	}
	if math.Abs(p.Lat-47.1815) > 0.004 {
		t.Fatalf("point %v outside zone jitter radius", p)
	}
}

func TestResolveGeocoderFallback(t *testing.T) {
	g := &fakeGeocoder{point: Point{Lat: 47.14, Lng: 27.58}, ok: true}
	r := testResolver(g)

	p, prec := r.Resolve(context.Background(), "Apartament 2 camere", "Moara de Vant")
	if prec != PrecisionGeocoded {
		t.Fatalf("precision = %v, want geocoded", prec)
	}
	if g.calls != 1 {
		t.Fatalf("geocoder calls = %d, want 1", g.calls)
	}
	if math.Abs(p.Lat-47.14) > 0.008 || math.Abs(p.Lng-27.58) > 0.008 {
		t.Fatalf("point %v outside geocoded jitter radius", p)
	}
}

func TestResolveCentroidFallback(t *testing.T) {
	g := &fakeGeocoder{ok: false}
	r := testResolver(g)

	p, prec := r.Resolve(context.Background(), "Apartament 2 camere", "Cartier Necunoscut")
	if prec != PrecisionCity {
		t.Fatalf("precision = %v, want city", prec)
	}
	if math.Abs(p.Lat-47.1585) > 0.02 || math.Abs(p.Lng-27.6014) > 0.02 {
		t.Fatalf("point %v outside centroid jitter radius", p)
	}
}

func TestJitterExactIsIdentity(t *testing.T) {
	r := testResolver(nil)

	p := Point{Lat: 47.16, Lng: 27.55}
	if got := r.Jitter(p, PrecisionExact); got != p {
		t.Fatalf("exact point moved: %v", got)
	}
}

func TestHashLength(t *testing.T) {
	if got := Hash(Point{Lat: 47.1585, Lng: 27.6014}); len(got) != 9 {
		t.Fatalf("geohash %q, want 9 characters", got)
	}
}
