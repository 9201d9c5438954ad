package scraper

import (
	"context"

	"imoagg/config"
	"imoagg/httputil"
)

// RawItem is one search-result card as a portal presented it, before
// normalization. Coordinates are nil unless the portal published them.
type RawItem struct {
	Title        string
	URL          string
	Description  string
	LocationText string
	Address      string
	PriceEUR     float64
	SqM          float64
	Images       []string
	Lat          *float64
	Lng          *float64
}

type Handler interface {
	ID() string
	Scrape(ctx context.Context) ([]RawItem, error)
}

func NewHandler(siteCfg *config.SiteConfig, clients *httputil.Clients) Handler {
	switch siteCfg.Handler {
	case "browser":
		return NewBrowserHandler(siteCfg)
	case "json":
		return NewJSONHandler(siteCfg, clients)
	default:
		return NewJSONHandler(siteCfg, clients)
	}
}
