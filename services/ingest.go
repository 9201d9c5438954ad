package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"imoagg/models"
)

// IngestStore is the slice of the listing repository the ingestion
// service needs.
type IngestStore interface {
	URLExists(ctx context.Context, url string) (bool, error)
	FindActiveByFingerprint(ctx context.Context, fingerprint, transactionType string) (*models.Listing, error)
	ApplyMergedPrice(ctx context.Context, id int64, price float64, url string) (bool, error)
	InsertListing(ctx context.Context, c *models.Candidate, now time.Time) (bool, error)
}

// IngestService decides, per candidate, between skip, merge and
// insert. Each candidate is committed independently so one failure
// never rolls back the rest of a page.
type IngestService struct {
	store IngestStore
}

func NewIngestService(store IngestStore) *IngestService {
	return &IngestService{store: store}
}

// Outcome of processing a single candidate.
type Outcome int

const (
	OutcomeSkipped Outcome = iota
	OutcomeMerged
	OutcomeInserted
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeMerged:
		return "merged"
	case OutcomeInserted:
		return "inserted"
	default:
		return "error"
	}
}

// IngestStats aggregates outcomes across one batch.
type IngestStats struct {
	Candidates int
	Inserted   int
	Merged     int
	Skipped    int
	Errors     int
}

// ProcessCandidate applies the dedup ladder to one scraped candidate:
// a known URL is a no-op, a fingerprint collision with a live record
// merges onto the cheaper price, everything else becomes a new ACTIVE
// row.
func (s *IngestService) ProcessCandidate(ctx context.Context, c *models.Candidate) (Outcome, error) {
	exists, err := s.store.URLExists(ctx, c.ListingURL)
	if err != nil {
		return OutcomeError, fmt.Errorf("url lookup: %w", err)
	}
	if exists {
		return OutcomeSkipped, nil
	}

	match, err := s.store.FindActiveByFingerprint(ctx, c.Fingerprint, c.TransactionType)
	if err != nil {
		return OutcomeError, fmt.Errorf("fingerprint lookup: %w", err)
	}
	if match != nil {
		if c.PriceEUR > 0 && c.PriceEUR < match.PriceEUR {
			merged, err := s.store.ApplyMergedPrice(ctx, match.ID, c.PriceEUR, c.ListingURL)
			if err != nil {
				return OutcomeError, fmt.Errorf("merge price: %w", err)
			}
			if !merged {
				// Lost the race on listing_url to a concurrent writer.
				return OutcomeSkipped, nil
			}
			return OutcomeMerged, nil
		}
		return OutcomeSkipped, nil
	}

	inserted, err := s.store.InsertListing(ctx, c, time.Now().UTC())
	if err != nil {
		return OutcomeError, fmt.Errorf("insert: %w", err)
	}
	if !inserted {
		// Lost the race on listing_url to a concurrent writer.
		return OutcomeSkipped, nil
	}
	return OutcomeInserted, nil
}

// ProcessBatch runs the full batch, tallying outcomes. Errors are
// logged and counted, never fatal for the batch.
func (s *IngestService) ProcessBatch(ctx context.Context, candidates []models.Candidate) IngestStats {
	stats := IngestStats{Candidates: len(candidates)}
	for i := range candidates {
		c := &candidates[i]
		outcome, err := s.ProcessCandidate(ctx, c)
		switch outcome {
		case OutcomeInserted:
			stats.Inserted++
		case OutcomeMerged:
			stats.Merged++
			log.Printf("Merged cheaper duplicate %s onto fingerprint %s (%.0f EUR)", c.ListingURL, c.Fingerprint, c.PriceEUR)
		case OutcomeSkipped:
			stats.Skipped++
		case OutcomeError:
			stats.Errors++
			log.Printf("Ingest error for %s: %v", c.ListingURL, err)
		}
	}
	return stats
}
