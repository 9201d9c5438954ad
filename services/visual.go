package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/corona10/goimagehash"

	"imoagg/models"
)

// VisualStore is the slice of the listing repository the visual
// deduplicator needs.
type VisualStore interface {
	ListActiveMissingImageHash(ctx context.Context, limit int) ([]models.Listing, error)
	SetImageHash(ctx context.Context, id int64, hash string) error
	FindActiveByImageHash(ctx context.Context, hash, transactionType string, excludeID int64) (*models.Listing, error)
	MarkVisualDuplicate(ctx context.Context, id, survivorID int64, annotation string) error
	UpdatePrice(ctx context.Context, id int64, price float64) error
}

// ImageFetcher retrieves and decodes a thumbnail.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
}

// HTTPImageFetcher fetches thumbnails over HTTP with a realistic
// browser identity.
type HTTPImageFetcher struct {
	client    *http.Client
	userAgent string
}

func NewHTTPImageFetcher(client *http.Client, userAgent string) *HTTPImageFetcher {
	return &HTTPImageFetcher{client: client, userAgent: userAgent}
}

func (f *HTTPImageFetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return img, nil
}

// VisualDedupService signs each live listing's thumbnail with a
// perceptual hash and retires re-posts that share one.
type VisualDedupService struct {
	store     VisualStore
	fetcher   ImageFetcher
	batchSize int
}

func NewVisualDedupService(store VisualStore, fetcher ImageFetcher) *VisualDedupService {
	return &VisualDedupService{
		store:     store,
		fetcher:   fetcher,
		batchSize: 200,
	}
}

// VisualStats aggregates one dedup pass.
type VisualStats struct {
	Hashed     int
	Unreadable int
	Duplicates int
	Errors     int
}

// Run hashes every ACTIVE listing not yet signed and resolves any
// pair that collides. An unreadable thumbnail gets the sentinel hash
// so it is never re-fetched; the sentinel never matches anything.
func (s *VisualDedupService) Run(ctx context.Context) (VisualStats, error) {
	var stats VisualStats

	listings, err := s.store.ListActiveMissingImageHash(ctx, s.batchSize)
	if err != nil {
		return stats, fmt.Errorf("list unhashed: %w", err)
	}

	for i := range listings {
		listing := &listings[i]
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		hash, err := s.hashThumbnail(ctx, listing.ThumbnailURL)
		if err != nil {
			log.Printf("Thumbnail unreadable for listing %d (%s): %v", listing.ID, listing.ThumbnailURL, err)
			if err := s.store.SetImageHash(ctx, listing.ID, models.ImageHashUnreadable); err != nil {
				stats.Errors++
				continue
			}
			stats.Unreadable++
			continue
		}

		if err := s.store.SetImageHash(ctx, listing.ID, hash); err != nil {
			stats.Errors++
			log.Printf("Failed to store image hash for listing %d: %v", listing.ID, err)
			continue
		}
		stats.Hashed++

		twin, err := s.store.FindActiveByImageHash(ctx, hash, listing.TransactionType, listing.ID)
		if err != nil {
			stats.Errors++
			log.Printf("Hash lookup failed for listing %d: %v", listing.ID, err)
			continue
		}
		if twin == nil {
			continue
		}

		if err := s.resolveDuplicate(ctx, listing, twin); err != nil {
			stats.Errors++
			log.Printf("Failed to resolve visual duplicate %d/%d: %v", listing.ID, twin.ID, err)
			continue
		}
		stats.Duplicates++
	}

	return stats, nil
}

func (s *VisualDedupService) hashThumbnail(ctx context.Context, url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("no thumbnail")
	}
	img, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", err
	}
	return hash.ToString(), nil
}

// resolveDuplicate retires the newer of the pair and keeps the older
// one live, inheriting the lower positive price.
func (s *VisualDedupService) resolveDuplicate(ctx context.Context, a, b *models.Listing) error {
	survivor, loser := a, b
	if survivor.CreatedAt.After(loser.CreatedAt) {
		survivor, loser = loser, survivor
	}

	annotation := fmt.Sprintf("[Duplicate of listing %d, retired %s] %s",
		survivor.ID, time.Now().UTC().Format("2006-01-02"), loser.Description)
	if err := s.store.MarkVisualDuplicate(ctx, loser.ID, survivor.ID, annotation); err != nil {
		return err
	}

	if loser.PriceEUR > 0 && (survivor.PriceEUR <= 0 || loser.PriceEUR < survivor.PriceEUR) {
		if err := s.store.UpdatePrice(ctx, survivor.ID, loser.PriceEUR); err != nil {
			return err
		}
	}

	log.Printf("Visual duplicate: listing %d retired in favor of %d", loser.ID, survivor.ID)
	return nil
}
