package storage

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"imoagg/models"
)

// SQLiteStore holds operational bookkeeping: scrape runs and their
// logs. Listing data never lands here.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scrape_runs (
		id TEXT PRIMARY KEY,
		site_id TEXT,
		started_at DATETIME,
		finished_at DATETIME,
		status TEXT,
		candidates_found INTEGER,
		listings_new INTEGER,
		listings_merged INTEGER,
		skipped INTEGER,
		errors_count INTEGER
	);

	CREATE TABLE IF NOT EXISTS scrape_logs (
		id INTEGER PRIMARY KEY,
		run_id TEXT,
		timestamp DATETIME,
		level TEXT,
		message TEXT,
		site_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_logs_run ON scrape_logs(run_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON scrape_runs(status, started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) CreateRun(run *models.ScrapeRun) (string, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO scrape_runs (id, site_id, started_at, status, candidates_found,
			listings_new, listings_merged, skipped, errors_count)
		VALUES (?, ?, ?, ?, 0, 0, 0, 0, 0)`,
		run.ID, run.SiteID, run.StartedAt, run.Status)
	if err != nil {
		return "", err
	}
	return run.ID, nil
}

func (s *SQLiteStore) FinishRun(run *models.ScrapeRun) error {
	now := time.Now().UTC()
	run.FinishedAt = &now
	_, err := s.db.Exec(`
		UPDATE scrape_runs SET finished_at = ?, status = ?, candidates_found = ?,
			listings_new = ?, listings_merged = ?, skipped = ?, errors_count = ?
		WHERE id = ?`,
		run.FinishedAt, run.Status, run.CandidatesFound,
		run.ListingsNew, run.ListingsMerged, run.Skipped, run.ErrorsCount, run.ID)
	return err
}

func (s *SQLiteStore) GetRun(id string) (*models.ScrapeRun, error) {
	row := s.db.QueryRow(`
		SELECT id, site_id, started_at, finished_at, status, candidates_found,
			listings_new, listings_merged, skipped, errors_count
		FROM scrape_runs WHERE id = ?`, id)

	var run models.ScrapeRun
	var finished sql.NullTime
	err := row.Scan(&run.ID, &run.SiteID, &run.StartedAt, &finished, &run.Status,
		&run.CandidatesFound, &run.ListingsNew, &run.ListingsMerged, &run.Skipped, &run.ErrorsCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	return &run, nil
}

func (s *SQLiteStore) RecentRuns(limit int) ([]models.ScrapeRun, error) {
	rows, err := s.db.Query(`
		SELECT id, site_id, started_at, finished_at, status, candidates_found,
			listings_new, listings_merged, skipped, errors_count
		FROM scrape_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.ScrapeRun
	for rows.Next() {
		var run models.ScrapeRun
		var finished sql.NullTime
		if err := rows.Scan(&run.ID, &run.SiteID, &run.StartedAt, &finished, &run.Status,
			&run.CandidatesFound, &run.ListingsNew, &run.ListingsMerged, &run.Skipped, &run.ErrorsCount); err != nil {
			return nil, err
		}
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) Log(entry *models.ScrapeLog) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO scrape_logs (run_id, timestamp, level, message, site_id)
		VALUES (?, ?, ?, ?, ?)`,
		entry.RunID, entry.Timestamp, entry.Level, entry.Message, entry.SiteID)
	return err
}

func (s *SQLiteStore) LogsForRun(runID string) ([]models.ScrapeLog, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, timestamp, level, message, site_id
		FROM scrape_logs WHERE run_id = ? ORDER BY timestamp`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.ScrapeLog
	for rows.Next() {
		var entry models.ScrapeLog
		var runID sql.NullString
		if err := rows.Scan(&entry.ID, &runID, &entry.Timestamp, &entry.Level, &entry.Message, &entry.SiteID); err != nil {
			return nil, err
		}
		if runID.Valid {
			entry.RunID = &runID.String
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
