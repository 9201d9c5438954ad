package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"imoagg/config"
	"imoagg/httputil"
)

// JSONHandler scrapes portals that render search results through
// Next.js and embed the full result set as JSON in the page. Storia
// works this way: one plain GET yields every card on the page.
type JSONHandler struct {
	cfg     *config.SiteConfig
	clients *httputil.Clients
}

func NewJSONHandler(cfg *config.SiteConfig, clients *httputil.Clients) *JSONHandler {
	return &JSONHandler{cfg: cfg, clients: clients}
}

func (h *JSONHandler) ID() string {
	return h.cfg.ID
}

// searchResults mirrors the slice of __NEXT_DATA__ the results page
// embeds. A missing items path means the portal changed its markup
// and the run must stop rather than ingest garbage.
type searchResults struct {
	Props struct {
		PageProps struct {
			Data struct {
				SearchAds struct {
					Items []searchAd `json:"items"`
				} `json:"searchAds"`
			} `json:"data"`
		} `json:"pageProps"`
	} `json:"props"`
}

type searchAd struct {
	Title      string `json:"title"`
	Slug       string `json:"slug"`
	TotalPrice *struct {
		Value float64 `json:"value"`
	} `json:"totalPrice"`
	AreaInSquareMeters float64 `json:"areaInSquareMeters"`
	Images             []struct {
		Medium string `json:"medium"`
		Large  string `json:"large"`
	} `json:"images"`
	Location *struct {
		Address *struct {
			Street *struct {
				Name string `json:"name"`
			} `json:"street"`
		} `json:"address"`
		ReverseGeocoding *struct {
			Locations []struct {
				LocationLevel string `json:"locationLevel"`
				Name          string `json:"name"`
			} `json:"locations"`
		} `json:"reverseGeocoding"`
	} `json:"location"`
	Map *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"map"`
}

func (h *JSONHandler) Scrape(ctx context.Context) ([]RawItem, error) {
	h.pauseBeforeFetch(ctx)

	req, err := h.clients.PageRequest(ctx, h.cfg.ResultsURL)
	if err != nil {
		return nil, err
	}

	resp, err := h.clients.Page.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("results page returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}

	return h.parseResults(body)
}

// pauseBeforeFetch throttles the results-page GET with a randomized
// delay in [rate_limit_ms/2, rate_limit_ms].
func (h *JSONHandler) pauseBeforeFetch(ctx context.Context) {
	ms := h.cfg.RateLimitMS
	if ms <= 0 {
		return
	}
	delay := time.Duration(ms/2+rand.Intn(ms/2+1)) * time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (h *JSONHandler) parseResults(body []byte) ([]RawItem, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	raw := doc.Find("script#__NEXT_DATA__").First().Text()
	if raw == "" {
		return nil, fmt.Errorf("no structured data on results page")
	}

	var results searchResults
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, fmt.Errorf("parse structured data: %w", err)
	}

	ads := results.Props.PageProps.Data.SearchAds.Items
	if ads == nil {
		return nil, fmt.Errorf("results payload missing ad items, page layout changed")
	}

	var items []RawItem
	for _, ad := range ads {
		if ad.Title == "" || ad.Slug == "" {
			continue
		}

		item := RawItem{
			Title: ad.Title,
			URL:   h.cfg.DetailURLPrefix + "/" + ad.Slug,
			SqM:   ad.AreaInSquareMeters,
		}
		if ad.TotalPrice != nil {
			item.PriceEUR = ad.TotalPrice.Value
		}
		for _, img := range ad.Images {
			u := img.Medium
			if u == "" {
				u = img.Large
			}
			if u != "" {
				item.Images = append(item.Images, u)
			}
		}
		item.LocationText = adLocation(&ad)
		if addr := ad.Location; addr != nil && addr.Address != nil && addr.Address.Street != nil {
			item.Address = addr.Address.Street.Name
		}
		if ad.Map != nil && ad.Map.Lat != 0 && ad.Map.Lon != 0 {
			lat, lon := ad.Map.Lat, ad.Map.Lon
			item.Lat, item.Lng = &lat, &lon
		}

		items = append(items, item)
	}

	log.Printf("%s: parsed %d of %d result cards", h.cfg.ID, len(items), len(ads))
	return items, nil
}

// adLocation prefers the district from reverse geocoding, falling
// back to the street name.
func adLocation(ad *searchAd) string {
	if ad.Location == nil {
		return ""
	}
	if rg := ad.Location.ReverseGeocoding; rg != nil {
		for _, loc := range rg.Locations {
			if loc.LocationLevel == "district" && loc.Name != "" {
				return loc.Name
			}
		}
	}
	if addr := ad.Location.Address; addr != nil && addr.Street != nil {
		return addr.Street.Name
	}
	return ""
}
