package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imoagg/config"
	"imoagg/geo"
	"imoagg/httputil"
	"imoagg/identity"
	"imoagg/logging"
	"imoagg/models"
	"imoagg/scheduler"
	"imoagg/scraper"
	"imoagg/services"
	"imoagg/storage"
	"imoagg/workers"
)

var (
	ingestNow  = flag.Bool("ingest", false, "Run one ingestion pass and exit")
	enrichNow  = flag.Bool("enrich", false, "Run one enrichment pass and exit")
	dedupNow   = flag.Bool("dedup", false, "Run one visual dedup pass and exit")
	janitorNow = flag.Bool("janitor", false, "Run one janitor pass and exit")
	siteID     = flag.String("site", "", "Restrict -ingest to a single site ID")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("pipeline.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting imoagg...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d site configs", len(cfg.Sites))
	for id, site := range cfg.Sites {
		log.Printf("  - %s (%s)", site.Name, id)
	}

	ctx := context.Background()

	store, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer store.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))

	opsStore, err := storage.NewSQLiteStore(cfg.OpsDBPath)
	if err != nil {
		log.Fatalf("Failed to open ops database: %v", err)
	}
	defer opsStore.Close()
	log.Printf("Ops database: %s", cfg.OpsDBPath)

	clients := httputil.NewClients(httputil.DefaultUserAgent)

	var geocoder geo.Geocoder
	if cfg.Geocoder.UserAgent != "" {
		geocoder = geo.NewNominatimClient(clients.Geo, cfg.Geocoder.UserAgent, cfg.City.Name+", Romania")
		log.Println("Nominatim geocoding enabled")
	}

	zones := make(map[string]geo.Point, len(cfg.City.Zones))
	for name, zp := range cfg.City.Zones {
		zones[name] = geo.Point{Lat: zp.Lat, Lng: zp.Lng}
	}
	centroid := geo.Point{Lat: cfg.City.Lat, Lng: cfg.City.Lng}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	resolver := geo.NewResolver(centroid, zones, geocoder, rng)

	gen := identity.NewGenerator(cfg.City.Name)
	normalizer := scraper.NewNormalizer(gen, resolver, cfg.City.Name)

	ingestService := services.NewIngestService(store)
	orchestrator := scraper.NewOrchestrator(cfg, opsStore, ingestService, normalizer, clients)

	// Worker-side retirements and deletions land in the same scrape_logs
	// table the orchestrator writes to.
	workerLog := func(level models.LogLevel, siteID, message string) {
		log.Printf("[%s] %s", siteID, message)
		entry := &models.ScrapeLog{Level: level, Message: message, SiteID: siteID}
		if err := opsStore.Log(entry); err != nil {
			log.Printf("Failed to write scrape log: %v", err)
		}
	}

	minDelay := time.Duration(cfg.Scraper.MinDelayMS) * time.Millisecond
	maxDelay := time.Duration(cfg.Scraper.MaxDelayMS) * time.Millisecond
	enrichmentWorker := workers.NewEnrichmentWorker(store, clients, minDelay, maxDelay)
	enrichmentWorker.SetLogger(workerLog)

	fetcher := services.NewHTTPImageFetcher(clients.Image, httputil.DefaultUserAgent)
	visualService := services.NewVisualDedupService(store, fetcher)

	rules := make(map[string]workers.SiteRules)
	for _, site := range cfg.Sites {
		rules[site.Platform] = workers.SiteRules{
			DetailURLPrefix: site.DetailURLPrefix,
			Soft404Phrases:  site.Soft404Phrases,
		}
	}
	janitorWorker := workers.NewJanitorWorker(store, clients, rules)
	janitorWorker.SetLogger(workerLog)

	switch {
	case *ingestNow:
		if *siteID != "" {
			if err := orchestrator.RunSite(ctx, *siteID); err != nil {
				log.Fatalf("Ingestion failed: %v", err)
			}
		} else if err := orchestrator.RunAll(ctx); err != nil {
			log.Fatalf("Ingestion failed: %v", err)
		}
		log.Println("Ingestion complete")
		return
	case *enrichNow:
		if _, err := enrichmentWorker.Run(ctx); err != nil {
			log.Fatalf("Enrichment failed: %v", err)
		}
		log.Println("Enrichment complete")
		return
	case *dedupNow:
		if _, err := visualService.Run(ctx); err != nil {
			log.Fatalf("Visual dedup failed: %v", err)
		}
		log.Println("Visual dedup complete")
		return
	case *janitorNow:
		if _, err := janitorWorker.Run(ctx); err != nil {
			log.Fatalf("Janitor failed: %v", err)
		}
		log.Println("Janitor complete")
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(cfg, orchestrator, enrichmentWorker, visualService, janitorWorker)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	// Simple mask - find :// and mask until @
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
