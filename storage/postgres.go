package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"imoagg/models"
)

// PostgresStore is the canonical listing repository. The unique
// constraint on listing_url is the actual race guard for concurrent
// inserts; callers treat the resulting conflict as a benign skip.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS listings (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price_eur DOUBLE PRECISION NOT NULL DEFAULT 0,
		sqm DOUBLE PRECISION NOT NULL DEFAULT 0,
		rooms INT,
		floor INT,
		year_built INT,
		compartmentation TEXT NOT NULL DEFAULT '',
		neighborhood TEXT NOT NULL DEFAULT '',
		address TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL DEFAULT '',
		images TEXT[] NOT NULL DEFAULT '{}',
		listing_url TEXT NOT NULL UNIQUE,
		transaction_type TEXT NOT NULL DEFAULT 'SALE',
		fingerprint TEXT NOT NULL,
		lat DOUBLE PRECISION NOT NULL DEFAULT 0,
		lng DOUBLE PRECISION NOT NULL DEFAULT 0,
		geohash TEXT NOT NULL DEFAULT '',
		geo_precision TEXT NOT NULL DEFAULT 'city',
		image_hash TEXT,
		duplicate_of BIGINT REFERENCES listings(id),
		source_platform TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		last_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_listings_fingerprint ON listings (fingerprint) WHERE status = 'ACTIVE';
	CREATE INDEX IF NOT EXISTS idx_listings_last_seen ON listings (last_seen_at) WHERE status = 'ACTIVE';
	CREATE INDEX IF NOT EXISTS idx_listings_image_hash ON listings (image_hash) WHERE status = 'ACTIVE';
	CREATE INDEX IF NOT EXISTS idx_listings_updated ON listings (updated_at DESC);`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

const listingColumns = `
	id, title, description, price_eur, sqm, rooms, floor, year_built,
	compartmentation, neighborhood, address, thumbnail_url, images,
	listing_url, transaction_type, fingerprint, lat, lng, geohash,
	geo_precision, image_hash, duplicate_of, source_platform, status,
	last_seen_at, created_at, updated_at`

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(
		&l.ID, &l.Title, &l.Description, &l.PriceEUR, &l.SqM, &l.Rooms, &l.Floor, &l.YearBuilt,
		&l.Compartmentation, &l.Neighborhood, &l.Address, &l.ThumbnailURL, &l.Images,
		&l.ListingURL, &l.TransactionType, &l.Fingerprint, &l.Lat, &l.Lng, &l.Geohash,
		&l.GeoPrecision, &l.ImageHash, &l.DuplicateOf, &l.SourcePlatform, &l.Status,
		&l.LastSeenAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// InsertListing inserts a candidate as a new ACTIVE row. A collision
// on listing_url returns (false, nil): the candidate is already known
// and the batch continues.
func (s *PostgresStore) InsertListing(ctx context.Context, c *models.Candidate, now time.Time) (bool, error) {
	query := `
		INSERT INTO listings (
			title, description, price_eur, sqm, rooms, floor, year_built,
			compartmentation, neighborhood, address, thumbnail_url, images,
			listing_url, transaction_type, fingerprint, lat, lng, geohash,
			geo_precision, source_platform, status, last_seen_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $22, $22
		)
		ON CONFLICT (listing_url) DO NOTHING`

	images := c.Images
	if images == nil {
		images = []string{}
	}

	tag, err := s.pool.Exec(ctx, query,
		c.Title, c.Description, c.PriceEUR, c.SqM, c.Rooms, c.Floor, c.YearBuilt,
		c.Compartmentation, c.Neighborhood, c.Address, c.Thumbnail(), images,
		c.ListingURL, c.TransactionType, c.Fingerprint, c.Lat, c.Lng, c.Geohash,
		c.GeoPrecision, c.SourcePlatform, models.StatusActive, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) URLExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM listings WHERE listing_url = $1)`, url,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) FindActiveByFingerprint(ctx context.Context, fingerprint, transactionType string) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE fingerprint = $1 AND transaction_type = $2 AND status = $3
		LIMIT 1`
	return scanListing(s.pool.QueryRow(ctx, query, fingerprint, transactionType, models.StatusActive))
}

// ApplyMergedPrice propagates a cheaper cross-source duplicate onto
// the surviving record: price and URL are overwritten, updated_at is
// bumped so the record surfaces as fresh. The URL overwrite can lose a
// race against a concurrent insert of the same listing_url; that
// conflict returns (false, nil) and the candidate is just a skip.
func (s *PostgresStore) ApplyMergedPrice(ctx context.Context, id int64, price float64, url string) (bool, error) {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET price_eur = $2, listing_url = $3, updated_at = NOW() WHERE id = $1`,
		id, price, url,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *PostgresStore) UpdatePrice(ctx context.Context, id int64, price float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET price_eur = $2, updated_at = NOW() WHERE id = $1`,
		id, price,
	)
	return err
}

// ListRecentActive returns the most recently updated ACTIVE rows, the
// enricher's selection window.
func (s *PostgresStore) ListRecentActive(ctx context.Context, limit int) ([]models.Listing, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE status = $1
		ORDER BY updated_at DESC
		LIMIT $2`
	return s.queryListings(ctx, query, models.StatusActive, limit)
}

// ListStaleActive returns ACTIVE rows not seen since the threshold,
// oldest first: the janitor's batch.
func (s *PostgresStore) ListStaleActive(ctx context.Context, olderThan time.Time, limit int) ([]models.Listing, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE status = $1 AND last_seen_at < $2
		ORDER BY last_seen_at ASC
		LIMIT $3`
	return s.queryListings(ctx, query, models.StatusActive, olderThan, limit)
}

// ListActiveMissingImageHash returns ACTIVE rows the visual
// deduplicator has not signed yet.
func (s *PostgresStore) ListActiveMissingImageHash(ctx context.Context, limit int) ([]models.Listing, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE status = $1 AND image_hash IS NULL AND thumbnail_url <> ''
		LIMIT $2`
	return s.queryListings(ctx, query, models.StatusActive, limit)
}

func (s *PostgresStore) FindActiveByImageHash(ctx context.Context, hash, transactionType string, excludeID int64) (*models.Listing, error) {
	query := `SELECT ` + listingColumns + `
		FROM listings
		WHERE image_hash = $1 AND transaction_type = $2 AND status = $3 AND id <> $4
		LIMIT 1`
	return scanListing(s.pool.QueryRow(ctx, query, hash, transactionType, models.StatusActive, excludeID))
}

func (s *PostgresStore) SetImageHash(ctx context.Context, id int64, hash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET image_hash = $2 WHERE id = $1`,
		id, hash,
	)
	return err
}

// MarkVisualDuplicate retires the newer of two visually identical
// listings, annotating it and linking it to the survivor.
func (s *PostgresStore) MarkVisualDuplicate(ctx context.Context, id, survivorID int64, annotation string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET status = $2, duplicate_of = $3, description = $4, updated_at = NOW() WHERE id = $1`,
		id, models.StatusInactive, survivorID, annotation,
	)
	return err
}

// MarkInactive flips status only; last_seen_at keeps the timestamp of
// the last successful liveness confirmation.
func (s *PostgresStore) MarkInactive(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, models.StatusInactive,
	)
	return err
}

func (s *PostgresStore) TouchLastSeen(ctx context.Context, id int64, t time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET last_seen_at = $2 WHERE id = $1`,
		id, t,
	)
	return err
}

// DeleteListing removes a record whose own URL is unusable. This is
// the only physical delete in the pipeline.
func (s *PostgresStore) DeleteListing(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) UpdateDescription(ctx context.Context, id int64, description string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET description = $2 WHERE id = $1`,
		id, description,
	)
	return err
}

func (s *PostgresStore) UpdateImages(ctx context.Context, id int64, images []string, thumbnail string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET images = $2, thumbnail_url = $3 WHERE id = $1`,
		id, images, thumbnail,
	)
	return err
}

// UpdateCoordinates backfills a point the portal itself published for
// the listing, replacing whatever the resolver jittered at ingest.
func (s *PostgresStore) UpdateCoordinates(ctx context.Context, id int64, lat, lng float64, geohash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE listings SET lat = $2, lng = $3, geohash = $4, geo_precision = $5 WHERE id = $1`,
		id, lat, lng, geohash, "exact",
	)
	return err
}

func (s *PostgresStore) BumpUpdatedAt(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE listings SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

func (s *PostgresStore) queryListings(ctx context.Context, query string, args ...any) ([]models.Listing, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(
			&l.ID, &l.Title, &l.Description, &l.PriceEUR, &l.SqM, &l.Rooms, &l.Floor, &l.YearBuilt,
			&l.Compartmentation, &l.Neighborhood, &l.Address, &l.ThumbnailURL, &l.Images,
			&l.ListingURL, &l.TransactionType, &l.Fingerprint, &l.Lat, &l.Lng, &l.Geohash,
			&l.GeoPrecision, &l.ImageHash, &l.DuplicateOf, &l.SourcePlatform, &l.Status,
			&l.LastSeenAt, &l.CreatedAt, &l.UpdatedAt,
		); err != nil {
			return nil, err
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}
