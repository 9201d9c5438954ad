package workers

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"imoagg/extract"
	"imoagg/httputil"
	"imoagg/models"
)

const (
	janitorStaleAfter = 24 * time.Hour
	janitorBatchSize  = 50
	janitorMinDelay   = 1500 * time.Millisecond
	janitorMaxDelay   = 3500 * time.Millisecond
)

// JanitorStore is the slice of the listing repository the janitor
// needs.
type JanitorStore interface {
	ListStaleActive(ctx context.Context, olderThan time.Time, limit int) ([]models.Listing, error)
	MarkInactive(ctx context.Context, id int64) error
	TouchLastSeen(ctx context.Context, id int64, t time.Time) error
}

// SiteRules carries the per-portal liveness heuristics: phrases a
// soft-404 page shows, and the URL prefix every real detail page
// lives under.
type SiteRules struct {
	DetailURLPrefix string
	Soft404Phrases  []string
}

// JanitorWorker confirms that stale ACTIVE listings are still
// published at their source and retires the ones that are not. It
// only ever moves records ACTIVE to INACTIVE, never back.
type JanitorWorker struct {
	store    JanitorStore
	clients  *httputil.Clients
	rules    map[string]SiteRules // keyed by source platform
	minDelay time.Duration
	maxDelay time.Duration
	logFunc  LogFunc
}

func NewJanitorWorker(store JanitorStore, clients *httputil.Clients, rules map[string]SiteRules) *JanitorWorker {
	return &JanitorWorker{
		store:    store,
		clients:  clients,
		rules:    rules,
		minDelay: janitorMinDelay,
		maxDelay: janitorMaxDelay,
		logFunc:  NoOpLogger,
	}
}

func (w *JanitorWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// JanitorStats aggregates one liveness pass.
type JanitorStats struct {
	Checked   int
	Confirmed int
	Retired   int
	Errors    int
}

// CheckResult is the verdict for a single listing.
type CheckResult struct {
	Live       bool
	StatusCode int
	Reason     string
	Err        error
}

// Run checks the oldest ACTIVE listings not confirmed in the last 24
// hours, a batch at a time.
func (w *JanitorWorker) Run(ctx context.Context) (JanitorStats, error) {
	var stats JanitorStats

	threshold := time.Now().UTC().Add(-janitorStaleAfter)
	listings, err := w.store.ListStaleActive(ctx, threshold, janitorBatchSize)
	if err != nil {
		return stats, fmt.Errorf("list stale active: %w", err)
	}

	for i := range listings {
		listing := &listings[i]
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		// Jitter precedes every fetch, the first of a pass included.
		sleepWithJitter(ctx, w.minDelay, w.maxDelay)

		result := w.Check(ctx, listing)
		stats.Checked++

		switch {
		case result.Err != nil:
			// Inconclusive, the record stays as it was and ages
			// toward the next pass.
			stats.Errors++
			log.Printf("Janitor: check failed for listing %d (%s): %v", listing.ID, listing.ListingURL, result.Err)
		case result.Live:
			if err := w.store.TouchLastSeen(ctx, listing.ID, time.Now().UTC()); err != nil {
				stats.Errors++
				log.Printf("Janitor: touch failed for listing %d: %v", listing.ID, err)
				break
			}
			stats.Confirmed++
		default:
			// Status flips, last_seen_at keeps the timestamp of the
			// last confirmation.
			if err := w.store.MarkInactive(ctx, listing.ID); err != nil {
				stats.Errors++
				log.Printf("Janitor: retire failed for listing %d: %v", listing.ID, err)
				break
			}
			stats.Retired++
			w.logFunc(models.LogLevelInfo, listing.SourcePlatform, fmt.Sprintf("Retired listing %d: %s", listing.ID, result.Reason))
		}
	}

	log.Printf("Janitor pass: %d checked, %d confirmed, %d retired, %d errors",
		stats.Checked, stats.Confirmed, stats.Retired, stats.Errors)
	return stats, nil
}

// Check fetches the listing URL and applies the liveness heuristics
// for its portal: hard 404/410, soft-404 phrases in the body, and
// redirects that land off the portal's detail-page prefix.
func (w *JanitorWorker) Check(ctx context.Context, listing *models.Listing) CheckResult {
	req, err := w.clients.PageRequest(ctx, listing.ListingURL)
	if err != nil {
		return CheckResult{Err: err}
	}

	resp, err := w.clients.Page.Do(req)
	if err != nil {
		return CheckResult{Err: err}
	}
	defer resp.Body.Close()

	result := CheckResult{StatusCode: resp.StatusCode}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		result.Reason = fmt.Sprintf("status %d", resp.StatusCode)
		return result
	case resp.StatusCode != http.StatusOK:
		result.Err = fmt.Errorf("status %d", resp.StatusCode)
		return result
	}

	rules, ok := w.rules[listing.SourcePlatform]
	if ok && rules.DetailURLPrefix != "" {
		landed := resp.Request.URL.String()
		if !strings.Contains(landed, rules.DetailURLPrefix) {
			result.Reason = fmt.Sprintf("redirected off detail pages to %s", landed)
			return result
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		result.Err = fmt.Errorf("read body: %w", err)
		return result
	}

	if ok {
		page := extract.Fold(string(body))
		for _, phrase := range rules.Soft404Phrases {
			if strings.Contains(page, extract.Fold(phrase)) {
				result.Reason = fmt.Sprintf("soft-404 phrase %q", phrase)
				return result
			}
		}
	}

	result.Live = true
	return result
}
