package scraper

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"imoagg/config"
	"imoagg/httputil"
	"imoagg/models"
	"imoagg/services"
	"imoagg/storage"
)

// Orchestrator drives one ingestion pass: each configured site's
// handler scrapes its results page, the normalizer shapes the cards
// into candidates, and the ingest service lands them. Every pass is
// recorded in the ops store.
type Orchestrator struct {
	cfg        *config.Config
	opsStore   *storage.SQLiteStore
	ingest     *services.IngestService
	normalizer *Normalizer
	handlers   map[string]Handler
}

func NewOrchestrator(cfg *config.Config, opsStore *storage.SQLiteStore, ingest *services.IngestService, normalizer *Normalizer, clients *httputil.Clients) *Orchestrator {
	handlers := make(map[string]Handler)
	for id, siteCfg := range cfg.Sites {
		handlers[id] = NewHandler(siteCfg, clients)
	}

	return &Orchestrator{
		cfg:        cfg,
		opsStore:   opsStore,
		ingest:     ingest,
		normalizer: normalizer,
		handlers:   handlers,
	}
}

func (o *Orchestrator) RunAll(ctx context.Context) error {
	first := true
	for siteID := range o.cfg.Sites {
		if !first {
			o.pauseBetweenSites(ctx)
		}
		first = false
		if err := o.RunSite(ctx, siteID); err != nil {
			log.Printf("Error running site %s: %v", siteID, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// pauseBetweenSites spaces out consecutive site passes with the same
// randomized delay the detail workers use between page fetches.
func (o *Orchestrator) pauseBetweenSites(ctx context.Context) {
	minMS := o.cfg.Scraper.MinDelayMS
	maxMS := o.cfg.Scraper.MaxDelayMS
	if maxMS <= 0 || maxMS < minMS {
		return
	}
	delay := time.Duration(minMS+rand.Intn(maxMS-minMS+1)) * time.Millisecond
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (o *Orchestrator) RunSite(ctx context.Context, siteID string) error {
	siteCfg, ok := o.cfg.Sites[siteID]
	if !ok {
		return fmt.Errorf("unknown site: %s", siteID)
	}
	handler, ok := o.handlers[siteID]
	if !ok {
		return fmt.Errorf("no handler for site: %s", siteID)
	}

	run := &models.ScrapeRun{
		SiteID:    siteID,
		StartedAt: time.Now().UTC(),
		Status:    models.RunStatusRunning,
	}
	if _, err := o.opsStore.CreateRun(run); err != nil {
		return fmt.Errorf("create run: %w", err)
	}

	o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Starting scrape for %s", siteCfg.Name), siteID)

	defer func() {
		if err := o.opsStore.FinishRun(run); err != nil {
			log.Printf("Failed to finish run %s: %v", run.ID, err)
		}
	}()

	items, err := handler.Scrape(ctx)
	if err != nil {
		// A drifted page layout means zero trustworthy cards; stop
		// the site's pass rather than ingest partial garbage.
		run.Status = models.RunStatusFailed
		run.ErrorsCount++
		o.log(run.ID, models.LogLevelError, fmt.Sprintf("Scrape failed: %v", err), siteID)
		return err
	}

	candidates := o.normalizer.Normalize(ctx, items, siteCfg)
	run.CandidatesFound = len(candidates)
	o.log(run.ID, models.LogLevelInfo, fmt.Sprintf("Scraped %d candidates", len(candidates)), siteID)

	stats := o.ingest.ProcessBatch(ctx, candidates)
	run.ListingsNew = stats.Inserted
	run.ListingsMerged = stats.Merged
	run.Skipped = stats.Skipped
	run.ErrorsCount += stats.Errors
	run.Status = models.RunStatusCompleted

	o.log(run.ID, models.LogLevelInfo,
		fmt.Sprintf("Completed: %d candidates, %d new, %d merged, %d skipped, %d errors",
			stats.Candidates, stats.Inserted, stats.Merged, stats.Skipped, stats.Errors), siteID)
	return nil
}

func (o *Orchestrator) log(runID string, level models.LogLevel, message, siteID string) {
	log.Printf("[%s] %s", siteID, message)
	entry := &models.ScrapeLog{
		RunID:   &runID,
		Level:   level,
		Message: message,
		SiteID:  siteID,
	}
	if err := o.opsStore.Log(entry); err != nil {
		log.Printf("Failed to write scrape log: %v", err)
	}
}
