package geo

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const nominatimBaseURL = "https://nominatim.openstreetmap.org/search"

// NominatimClient resolves place names through the public Nominatim
// API. The service requires an identifying User-Agent and at most one
// request per second, so lookups self-throttle.
type NominatimClient struct {
	client      *http.Client
	userAgent   string
	querySuffix string
	minInterval time.Duration
	lastRequest time.Time
}

// NewNominatimClient builds a client that appends querySuffix (e.g.
// ", Iasi, Romania") to every lookup.
func NewNominatimClient(client *http.Client, userAgent, querySuffix string) *NominatimClient {
	return &NominatimClient{
		client:      client,
		userAgent:   userAgent,
		querySuffix: querySuffix,
		minInterval: 1200 * time.Millisecond,
	}
}

func (c *NominatimClient) Lookup(ctx context.Context, query string) (Point, bool) {
	c.throttle()

	params := url.Values{}
	params.Set("q", query+c.querySuffix)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, "GET", nominatimBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Point{}, false
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Printf("Geocoder: lookup failed for %q: %v", query, err)
		return Point{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Geocoder: status %d for %q", resp.StatusCode, query)
		return Point{}, false
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil || len(results) == 0 {
		return Point{}, false
	}

	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lng, err2 := strconv.ParseFloat(results[0].Lon, 64)
	if err1 != nil || err2 != nil {
		return Point{}, false
	}
	return Point{Lat: lat, Lng: lng}, true
}

func (c *NominatimClient) throttle() {
	if since := time.Since(c.lastRequest); since < c.minInterval {
		time.Sleep(c.minInterval - since)
	}
	c.lastRequest = time.Now()
}
