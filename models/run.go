package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ScrapeRun is an operational record of one ingestion pass over one
// (site, transaction-type) target.
type ScrapeRun struct {
	ID              string     `json:"id" db:"id"`
	SiteID          string     `json:"site_id" db:"site_id"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
	Status          RunStatus  `json:"status" db:"status"`
	CandidatesFound int        `json:"candidates_found" db:"candidates_found"`
	ListingsNew     int        `json:"listings_new" db:"listings_new"`
	ListingsMerged  int        `json:"listings_merged" db:"listings_merged"`
	Skipped         int        `json:"skipped" db:"skipped"`
	ErrorsCount     int        `json:"errors_count" db:"errors_count"`
}
