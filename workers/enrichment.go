package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"imoagg/geo"
	"imoagg/httputil"
	"imoagg/models"
)

const (
	enrichmentWindow  = 300
	minDescriptionLen = 50

	// Parsed description text this short is markup residue or a portal
	// placeholder, not a real description; it is discarded rather than
	// stored.
	minParsedDescLen = 20
)

// EnrichmentStore is the slice of the listing repository the
// enrichment worker needs.
type EnrichmentStore interface {
	ListRecentActive(ctx context.Context, limit int) ([]models.Listing, error)
	UpdateDescription(ctx context.Context, id int64, description string) error
	UpdateImages(ctx context.Context, id int64, images []string, thumbnail string) error
	UpdateCoordinates(ctx context.Context, id int64, lat, lng float64, geohash string) error
	BumpUpdatedAt(ctx context.Context, id int64) error
	MarkInactive(ctx context.Context, id int64) error
	DeleteListing(ctx context.Context, id int64) error
}

// EnrichmentWorker re-fetches listing detail pages to fill in full
// descriptions and complete image sets. It only ever widens a record:
// descriptions are replaced only by longer ones, image sets only by
// larger ones.
type EnrichmentWorker struct {
	store    EnrichmentStore
	clients  *httputil.Clients
	minDelay time.Duration
	maxDelay time.Duration
	logFunc  LogFunc
}

func NewEnrichmentWorker(store EnrichmentStore, clients *httputil.Clients, minDelay, maxDelay time.Duration) *EnrichmentWorker {
	return &EnrichmentWorker{
		store:    store,
		clients:  clients,
		minDelay: minDelay,
		maxDelay: maxDelay,
		logFunc:  NoOpLogger,
	}
}

func (w *EnrichmentWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// EnrichmentStats aggregates one enrichment pass.
type EnrichmentStats struct {
	Examined int
	Selected int
	Enriched int
	Retired  int
	Deleted  int
	Errors   int
}

// NeedsEnrichment reports whether a listing's detail data looks like
// it was never fetched: a stub description, a description copied from
// the title, or no imagery at all.
func NeedsEnrichment(l *models.Listing) bool {
	desc := strings.TrimSpace(l.Description)
	if len(desc) < minDescriptionLen {
		return true
	}
	if desc == strings.TrimSpace(l.Title) {
		return true
	}
	if len(l.Images) == 0 {
		return true
	}
	return false
}

// Run examines the recent ACTIVE window and enriches every listing
// that still looks like a search-results stub.
func (w *EnrichmentWorker) Run(ctx context.Context) (EnrichmentStats, error) {
	var stats EnrichmentStats

	listings, err := w.store.ListRecentActive(ctx, enrichmentWindow)
	if err != nil {
		return stats, fmt.Errorf("list recent active: %w", err)
	}
	stats.Examined = len(listings)

	for i := range listings {
		listing := &listings[i]
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !NeedsEnrichment(listing) {
			continue
		}
		stats.Selected++

		if err := w.enrichOne(ctx, listing, &stats); err != nil {
			stats.Errors++
			log.Printf("Enrichment failed for listing %d (%s): %v", listing.ID, listing.ListingURL, err)
		}
	}

	log.Printf("Enrichment pass: %d examined, %d selected, %d enriched, %d retired, %d deleted, %d errors",
		stats.Examined, stats.Selected, stats.Enriched, stats.Retired, stats.Deleted, stats.Errors)
	return stats, nil
}

func (w *EnrichmentWorker) enrichOne(ctx context.Context, listing *models.Listing, stats *EnrichmentStats) error {
	parsed, err := url.Parse(listing.ListingURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		// The record's own URL is unusable, nothing downstream can
		// ever check or display it.
		if err := w.store.DeleteListing(ctx, listing.ID); err != nil {
			return fmt.Errorf("delete malformed: %w", err)
		}
		stats.Deleted++
		w.logFunc(models.LogLevelWarn, listing.SourcePlatform, fmt.Sprintf("Deleted listing %d with malformed URL %q", listing.ID, listing.ListingURL))
		return nil
	}

	// Jitter precedes every fetch, the first of a pass included.
	sleepWithJitter(ctx, w.minDelay, w.maxDelay)

	req, err := w.clients.PageRequest(ctx, listing.ListingURL)
	if err != nil {
		return err
	}
	resp, err := w.clients.Page.Do(req)
	if err != nil {
		// Transient network trouble, leave the record for the next pass.
		return fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		if err := w.store.MarkInactive(ctx, listing.ID); err != nil {
			return fmt.Errorf("mark inactive: %w", err)
		}
		stats.Retired++
		w.logFunc(models.LogLevelInfo, listing.SourcePlatform, fmt.Sprintf("Listing %d gone (%d), retired", listing.ID, resp.StatusCode))
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	detail, err := ParseDetailPage(body)
	if err != nil {
		return fmt.Errorf("parse detail page: %w", err)
	}

	changed := false
	if len(detail.Description) > len(listing.Description) {
		if err := w.store.UpdateDescription(ctx, listing.ID, detail.Description); err != nil {
			return fmt.Errorf("update description: %w", err)
		}
		changed = true
	}
	if len(detail.Images) > len(listing.Images) {
		if err := w.store.UpdateImages(ctx, listing.ID, detail.Images, detail.Images[0]); err != nil {
			return fmt.Errorf("update images: %w", err)
		}
		changed = true
	}
	if detail.Lat != nil && detail.Lng != nil && listing.GeoPrecision != geo.PrecisionExact.String() {
		// The page carries the ad's own point; replace the jittered
		// zone or centroid fallback from ingest.
		p := geo.Point{Lat: *detail.Lat, Lng: *detail.Lng}
		if err := w.store.UpdateCoordinates(ctx, listing.ID, p.Lat, p.Lng, geo.Hash(p)); err != nil {
			return fmt.Errorf("update coordinates: %w", err)
		}
		changed = true
	}

	// The record was verified against its source either way.
	if err := w.store.BumpUpdatedAt(ctx, listing.ID); err != nil {
		return fmt.Errorf("bump updated_at: %w", err)
	}
	if changed {
		stats.Enriched++
	}
	return nil
}

// PageDetail is what a detail page yields after parsing. Lat and Lng
// are nil unless the page embedded the ad's own coordinates.
type PageDetail struct {
	Description string
	Images      []string
	Lat         *float64
	Lng         *float64
}

// ParseDetailPage extracts the full description and gallery from a
// detail page. Both OLX and Storia render through Next.js, so the
// embedded __NEXT_DATA__ JSON is tried first; OLX pages that predate
// it fall back to HTML selectors.
func ParseDetailPage(body []byte) (*PageDetail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	if detail := parseNextData(doc); detail != nil {
		return detail, nil
	}
	return parseDetailHTML(doc), nil
}

// nextDataAd mirrors the slice of __NEXT_DATA__ both portals embed on
// detail pages.
type nextDataAd struct {
	Props struct {
		PageProps struct {
			Ad struct {
				Description string `json:"description"`
				Photos      []struct {
					Link string `json:"link"`
				} `json:"photos"`
				Location *adCoordinates `json:"location"`
				Map      *adCoordinates `json:"map"`
			} `json:"ad"`
		} `json:"pageProps"`
	} `json:"props"`
}

// adCoordinates absorbs the coordinate shapes the portals have used on
// detail pages: a nested coordinates object, flat latitude/longitude,
// or flat lat/lon.
type adCoordinates struct {
	Coordinates *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

func (c *adCoordinates) point() (float64, float64, bool) {
	if c == nil {
		return 0, 0, false
	}
	if c.Coordinates != nil && c.Coordinates.Latitude != 0 && c.Coordinates.Longitude != 0 {
		return c.Coordinates.Latitude, c.Coordinates.Longitude, true
	}
	if c.Latitude != 0 && c.Longitude != 0 {
		return c.Latitude, c.Longitude, true
	}
	if c.Lat != 0 && c.Lon != 0 {
		return c.Lat, c.Lon, true
	}
	return 0, 0, false
}

func parseNextData(doc *goquery.Document) *PageDetail {
	raw := doc.Find("script#__NEXT_DATA__").First().Text()
	if raw == "" {
		return nil
	}

	var data nextDataAd
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}
	ad := data.Props.PageProps.Ad
	if ad.Description == "" && len(ad.Photos) == 0 {
		return nil
	}

	detail := &PageDetail{Description: cleanDescription(ad.Description)}
	seen := make(map[string]bool)
	for _, photo := range ad.Photos {
		u := CleanImageURL(photo.Link)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		detail.Images = append(detail.Images, u)
	}
	if lat, lng, ok := ad.Location.point(); ok {
		detail.Lat, detail.Lng = &lat, &lng
	} else if lat, lng, ok := ad.Map.point(); ok {
		detail.Lat, detail.Lng = &lat, &lng
	}
	return detail
}

func parseDetailHTML(doc *goquery.Document) *PageDetail {
	detail := &PageDetail{}

	desc := doc.Find(`[data-cy="ad_description"]`).First()
	if desc.Length() > 0 {
		detail.Description = cleanDescription(desc.Text())
	}

	seen := make(map[string]bool)
	doc.Find(`[data-cy="adPhotos-swiperSlide"] img, .swiper-zoom-container img`).Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok {
			src, _ = s.Attr("data-src")
		}
		u := CleanImageURL(src)
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		detail.Images = append(detail.Images, u)
	})

	return detail
}

// CleanImageURL rewrites an OLX CDN thumbnail URL to its full
// resolution variant. Other URLs pass through unchanged.
func CleanImageURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !strings.HasPrefix(raw, "http") {
		return ""
	}
	if idx := strings.Index(raw, ";s="); idx >= 0 {
		return raw[:idx] + ";s=1280x1024"
	}
	return raw
}

// cleanDescription strips the markup residue detail pages carry in
// their description blocks. Text that comes out too short to be a real
// description is dropped entirely.
func cleanDescription(s string) string {
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = strings.ReplaceAll(s, "<br />", "\n")
	s = strings.ReplaceAll(s, "<br>", "\n")
	for strings.Contains(s, "<") && strings.Contains(s, ">") {
		start := strings.Index(s, "<")
		end := strings.Index(s[start:], ">")
		if end < 0 {
			break
		}
		s = s[:start] + s[start+end+1:]
	}
	s = strings.TrimSpace(s)
	if len(s) <= minParsedDescLen {
		return ""
	}
	return s
}
