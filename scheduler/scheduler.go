package scheduler

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/robfig/cron/v3"

	"imoagg/config"
	"imoagg/scraper"
	"imoagg/services"
	"imoagg/workers"
)

// Scheduler runs the pipeline on wall-clock times: full passes at the
// configured hours, the janitor on its own off-peak slot. Within a
// pipeline pass the stages run sequentially so each consumes the
// previous stage's output.
type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	enrichment   *workers.EnrichmentWorker
	visual       *services.VisualDedupService
	janitor      *workers.JanitorWorker
	cron         *cron.Cron
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator, enrichment *workers.EnrichmentWorker, visual *services.VisualDedupService, janitor *workers.JanitorWorker) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		enrichment:   enrichment,
		visual:       visual,
		janitor:      janitor,
		cron:         cron.New(),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	for _, t := range s.cfg.Schedule.PipelineTimes {
		spec, err := cronSpec(t)
		if err != nil {
			return fmt.Errorf("pipeline time %q: %w", t, err)
		}
		if _, err := s.cron.AddFunc(spec, func() { s.RunPipeline(ctx) }); err != nil {
			return fmt.Errorf("schedule pipeline at %s: %w", t, err)
		}
		log.Printf("Pipeline scheduled at %s", t)
	}

	spec, err := cronSpec(s.cfg.Schedule.JanitorTime)
	if err != nil {
		return fmt.Errorf("janitor time %q: %w", s.cfg.Schedule.JanitorTime, err)
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunJanitor(ctx) }); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	log.Printf("Janitor scheduled at %s", s.cfg.Schedule.JanitorTime)

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

// RunPipeline runs ingestion, enrichment and visual dedup in order.
// A panic in one stage is contained so the later stages still run on
// whatever data is already there.
func (s *Scheduler) RunPipeline(ctx context.Context) {
	log.Println("Pipeline pass starting")

	runStage("ingestion", func() {
		if err := s.orchestrator.RunAll(ctx); err != nil {
			log.Printf("Ingestion error: %v", err)
		}
	})
	runStage("enrichment", func() {
		if _, err := s.enrichment.Run(ctx); err != nil {
			log.Printf("Enrichment error: %v", err)
		}
	})
	runStage("visual dedup", func() {
		if _, err := s.visual.Run(ctx); err != nil {
			log.Printf("Visual dedup error: %v", err)
		}
	})

	log.Println("Pipeline pass finished")
}

func (s *Scheduler) RunJanitor(ctx context.Context) {
	runStage("janitor", func() {
		if _, err := s.janitor.Run(ctx); err != nil {
			log.Printf("Janitor error: %v", err)
		}
	})
}

func runStage(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Stage %s panicked: %v", name, r)
		}
	}()
	fn()
}

// cronSpec converts a wall-clock "HH:MM" into a cron expression.
func cronSpec(hhmm string) (string, error) {
	parts := strings.Split(strings.TrimSpace(hhmm), ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("expected HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("bad hour %q", parts[0])
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("bad minute %q", parts[1])
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}
