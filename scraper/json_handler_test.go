package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"imoagg/config"
	"imoagg/httputil"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	path := filepath.Join("testdata", name)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

func storiaConfig() *config.SiteConfig {
	return &config.SiteConfig{
		ID:              "storia_sale",
		Name:            "Storia (vanzare)",
		Handler:         "json",
		Platform:        "Storia",
		TransactionType: "SALE",
		ResultsURL:      "https://www.storia.ro/ro/rezultate/vanzare/apartament/iasi/iasi",
		DetailURLPrefix: "https://www.storia.ro/ro/oferta",
	}
}

func TestParseResultsBasic(t *testing.T) {
	handler := NewJSONHandler(storiaConfig(), httputil.NewClients(""))
	data := loadFixture(t, "storia_results.html")

	items, err := handler.parseResults(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items (the untitled card is dropped), got %d", len(items))
	}

	first := items[0]
	if first.Title != "Apartament 2 camere decomandat Păcurari, etaj 3, 55 mp" {
		t.Fatalf("unexpected title %q", first.Title)
	}
	if first.URL != "https://www.storia.ro/ro/oferta/apartament-2-camere-decomandat-pacurari-ID4xyz1" {
		t.Fatalf("unexpected URL %q", first.URL)
	}
	if first.PriceEUR != 54000 {
		t.Fatalf("price = %v, want 54000", first.PriceEUR)
	}
	if first.SqM != 55 {
		t.Fatalf("sqm = %v, want 55", first.SqM)
	}
	if first.LocationText != "Păcurari" {
		t.Fatalf("location = %q, want the district", first.LocationText)
	}
	if len(first.Images) != 2 || first.Images[0] != "https://ireland.apollo.olxcdn.com/v1/files/img1-medium.jpg" {
		t.Fatalf("unexpected images %v", first.Images)
	}
	if first.Lat == nil || *first.Lat != 47.1631 || first.Lng == nil || *first.Lng != 27.5542 {
		t.Fatalf("unexpected coordinates %v %v", first.Lat, first.Lng)
	}

	second := items[1]
	if second.PriceEUR != 0 {
		t.Fatalf("null price parsed as %v", second.PriceEUR)
	}
	if second.Lat != nil {
		t.Fatal("missing map coordinates should stay nil")
	}
	if len(second.Images) != 1 || second.Images[0] != "https://ireland.apollo.olxcdn.com/v1/files/img3-large.jpg" {
		t.Fatalf("large fallback not used: %v", second.Images)
	}
}

func TestScrapeDelaysBeforeResultsFetch(t *testing.T) {
	fixture := loadFixture(t, "storia_results.html")

	start := time.Now()
	var fetchAt time.Duration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetchAt == 0 {
			fetchAt = time.Since(start)
		}
		w.Write(fixture)
	}))
	defer server.Close()

	cfg := storiaConfig()
	cfg.ResultsURL = server.URL + "/ro/rezultate"
	cfg.RateLimitMS = 60

	handler := NewJSONHandler(cfg, httputil.NewClients(""))
	items, err := handler.Scrape(context.Background())
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("no items parsed")
	}
	if fetchAt < 30*time.Millisecond {
		t.Fatalf("results fetched after %v, want the rate limit in front of it", fetchAt)
	}
}

func TestParseResultsRejectsDriftedLayout(t *testing.T) {
	handler := NewJSONHandler(storiaConfig(), httputil.NewClients(""))

	// A page without the structured data block means the portal
	// changed its rendering; the pass must fail loudly.
	if _, err := handler.parseResults([]byte(`<html><body><div>rezultate</div></body></html>`)); err == nil {
		t.Fatal("expected an error on a page without structured data")
	}

	// Structured data present but the items path is gone.
	drifted := []byte(`<html><body><script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{}}}</script></body></html>`)
	if _, err := handler.parseResults(drifted); err == nil {
		t.Fatal("expected an error when the ad items path is missing")
	}
}
