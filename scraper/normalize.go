package scraper

import (
	"context"
	"strings"

	"imoagg/config"
	"imoagg/extract"
	"imoagg/geo"
	"imoagg/identity"
	"imoagg/models"
)

// Normalizer turns raw portal cards into ingest-ready candidates:
// structured attributes filled from the listing text, neighborhood
// cleaned, coordinates resolved, fingerprint computed.
type Normalizer struct {
	gen      *identity.Generator
	resolver *geo.Resolver
	city     string
}

func NewNormalizer(gen *identity.Generator, resolver *geo.Resolver, city string) *Normalizer {
	return &Normalizer{gen: gen, resolver: resolver, city: city}
}

// Normalize converts one page of raw items. Items without a usable
// title or URL were already dropped by the handler; here the page is
// additionally deduplicated on URL, since portals repeat promoted
// cards.
func (n *Normalizer) Normalize(ctx context.Context, items []RawItem, siteCfg *config.SiteConfig) []models.Candidate {
	seen := make(map[string]bool, len(items))
	candidates := make([]models.Candidate, 0, len(items))

	for i := range items {
		item := &items[i]
		if seen[item.URL] {
			continue
		}
		seen[item.URL] = true
		candidates = append(candidates, n.normalizeOne(ctx, item, siteCfg))
	}
	return candidates
}

func (n *Normalizer) normalizeOne(ctx context.Context, item *RawItem, siteCfg *config.SiteConfig) models.Candidate {
	details := extract.Parse(item.Title + " " + item.Description)

	sqm := item.SqM
	if sqm == 0 && details.SqM != nil {
		sqm = *details.SqM
	}

	neighborhood := n.cleanNeighborhood(item.LocationText)

	c := models.Candidate{
		Title:            strings.TrimSpace(item.Title),
		Description:      strings.TrimSpace(item.Description),
		PriceEUR:         item.PriceEUR,
		SqM:              sqm,
		Rooms:            details.Rooms,
		Floor:            details.Floor,
		YearBuilt:        details.YearBuilt,
		Compartmentation: details.Layout,
		Neighborhood:     neighborhood,
		Address:          item.Address,
		Images:           item.Images,
		ListingURL:       item.URL,
		TransactionType:  siteCfg.TransactionType,
		SourcePlatform:   siteCfg.Platform,
	}

	var point geo.Point
	prec := geo.PrecisionExact
	if item.Lat != nil && item.Lng != nil {
		point = geo.Point{Lat: *item.Lat, Lng: *item.Lng}
	} else {
		point, prec = n.resolver.Resolve(ctx, item.Title, neighborhood)
	}
	c.Lat, c.Lng = point.Lat, point.Lng
	c.Geohash = geo.Hash(point)
	c.GeoPrecision = prec.String()

	c.Fingerprint = n.gen.Fingerprint(neighborhood, c.Rooms, c.Floor, c.SqM)
	return c
}

// cleanNeighborhood drops the city name out of a location line so
// "Pacurari, Iasi" and plain "Pacurari" normalize identically.
func (n *Normalizer) cleanNeighborhood(location string) string {
	location = strings.TrimSpace(location)
	if location == "" {
		return n.city
	}

	folded := extract.Fold(location)
	cityFolded := extract.Fold(n.city)

	var kept []string
	for _, word := range strings.Fields(folded) {
		if word == cityFolded {
			continue
		}
		kept = append(kept, word)
	}
	if len(kept) == 0 {
		return n.city
	}
	return strings.Join(kept, " ")
}
