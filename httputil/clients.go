package httputil

import (
	"context"
	"net/http"
	"time"
)

// DefaultUserAgent is the simulated browser fingerprint sent on plain
// HTTP fetches (the browser handler carries its own real fingerprint).
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type Clients struct {
	Page  *http.Client // listing/detail pages; follows redirects so callers can inspect the landing URL
	Image *http.Client // thumbnail downloads
	Geo   *http.Client // geocoding API

	userAgent string
}

func NewClients(userAgent string) *Clients {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Clients{
		Page:      &http.Client{Timeout: 15 * time.Second},
		Image:     &http.Client{Timeout: 10 * time.Second},
		Geo:       &http.Client{Timeout: 10 * time.Second},
		userAgent: userAgent,
	}
}

// PageRequest builds a GET carrying the simulated browser headers.
func (c *Clients) PageRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ro-RO,ro;q=0.9,en;q=0.8")
	return req, nil
}

// ImageRequest builds a GET for a thumbnail download.
func (c *Clients) ImageRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "image/*,*/*")
	return req, nil
}
