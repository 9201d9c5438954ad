package models

import "time"

// Listing status
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// Transaction types
const (
	TransactionSale = "SALE"
	TransactionRent = "RENT"
)

// ImageHashUnreadable is stored instead of a perceptual hash when the
// thumbnail could not be fetched or decoded, so the record is not
// retried forever.
const ImageHashUnreadable = "ERROR"

// Listing is the canonical unit produced by the pipeline. One row per
// listing_url; cross-source duplicates are merged onto a surviving row
// by fingerprint or visual signature.
type Listing struct {
	ID               int64     `json:"id" db:"id"`
	Title            string    `json:"title" db:"title"`
	Description      string    `json:"description" db:"description"`
	PriceEUR         float64   `json:"price_eur" db:"price_eur"`
	SqM              float64   `json:"sqm" db:"sqm"`
	Rooms            *int      `json:"rooms" db:"rooms"`
	Floor            *int      `json:"floor" db:"floor"`
	YearBuilt        *int      `json:"year_built" db:"year_built"`
	Compartmentation string    `json:"compartmentation" db:"compartmentation"`
	Neighborhood     string    `json:"neighborhood" db:"neighborhood"`
	Address          string    `json:"address" db:"address"`
	ThumbnailURL     string    `json:"thumbnail_url" db:"thumbnail_url"`
	Images           []string  `json:"images" db:"images"`
	ListingURL       string    `json:"listing_url" db:"listing_url"`
	TransactionType  string    `json:"transaction_type" db:"transaction_type"`
	Fingerprint      string    `json:"fingerprint" db:"fingerprint"`
	Lat              float64   `json:"lat" db:"lat"`
	Lng              float64   `json:"lng" db:"lng"`
	Geohash          string    `json:"geohash" db:"geohash"`
	GeoPrecision     string    `json:"geo_precision" db:"geo_precision"`
	ImageHash        *string   `json:"image_hash" db:"image_hash"`
	DuplicateOf      *int64    `json:"duplicate_of" db:"duplicate_of"`
	SourcePlatform   string    `json:"source_platform" db:"source_platform"`
	Status           string    `json:"status" db:"status"`
	LastSeenAt       time.Time `json:"last_seen_at" db:"last_seen_at"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Candidate is a normalized scraped record, ready for the ingestion
// decision (skip / merge / insert). Structured attributes are nil when
// neither the page data nor the text extractor produced them.
type Candidate struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	PriceEUR         float64  `json:"price_eur"`
	SqM              float64  `json:"sqm"`
	Rooms            *int     `json:"rooms"`
	Floor            *int     `json:"floor"`
	YearBuilt        *int     `json:"year_built"`
	Compartmentation string   `json:"compartmentation"`
	Neighborhood     string   `json:"neighborhood"`
	Address          string   `json:"address"`
	Images           []string `json:"images"`
	ListingURL       string   `json:"listing_url"`
	TransactionType  string   `json:"transaction_type"`
	Fingerprint      string   `json:"fingerprint"`
	Lat              float64  `json:"lat"`
	Lng              float64  `json:"lng"`
	Geohash          string   `json:"geohash"`
	GeoPrecision     string   `json:"geo_precision"`
	SourcePlatform   string   `json:"source_platform"`
}

// Thumbnail returns the image the visual deduplicator should hash.
func (c *Candidate) Thumbnail() string {
	if len(c.Images) == 0 {
		return ""
	}
	return c.Images[0]
}
