package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/ekaty/ekaty-agent/internal/config"
	"github.com/ekaty/ekaty-agent/internal/db"
	"github.com/ekaty/ekaty-agent/internal/listing"
)

// PostgresStore is the Store backed by a pgx pool. Every query runs a
// statement prepared by db.New.
type PostgresStore struct {
	pool   *db.Pool
	logger *slog.Logger
}

// OpenPostgres migrates the schema through database/sql and then opens the
// pool; the pool prepares statements against the migrated tables.
func OpenPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*PostgresStore, error) {
	if err := MigratePostgres(ctx, cfg.DatabaseURL, logger); err != nil {
		return nil, err
	}
	pool, err := db.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return NewPostgres(pool, logger), nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *db.Pool, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{pool: pool, logger: logger.With("component", "store", "backend", "postgres")}
}

// MigratePostgres applies the Postgres migrations using the pgx stdlib driver.
func MigratePostgres(ctx context.Context, databaseURL string, logger *slog.Logger) error {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open database for migrations: %w", err)
	}
	defer sqlDB.Close()

	_, err = Migrate(ctx, sqlDB, goose.DialectPostgres, logger)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.HealthCheck(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *listing.Record) (string, error) {
	if rec.SourceID == "" {
		return "", ErrMissingSourceID
	}
	hours, err := encodeHours(rec.Hours)
	if err != nil {
		return "", err
	}
	source := rec.Source
	if source == "" {
		source = listing.Source
	}
	price := rec.PriceLevel
	if price == "" {
		price = listing.PriceModerate
	}

	var id string
	err = s.pool.QueryRow(ctx, db.StmtUpsertListing,
		uuid.NewString(), rec.Name, rec.Slug, nullString(rec.Description), rec.Address,
		rec.City, rec.State, nullString(rec.Zip), rec.Latitude, rec.Longitude,
		nullString(rec.Phone), nullString(rec.Website),
		joinList(rec.Categories), joinList(rec.CuisineTypes),
		hours, string(price), nullString(joinList(rec.Photos)),
		rec.Rating, rec.ReviewCount, source, rec.SourceID,
		[]byte(rec.Metadata), rec.Active,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert listing %s: %w", rec.SourceID, err)
	}
	s.logger.Debug("Listing upserted", "id", id, "name", rec.Name)
	return id, nil
}

func (s *PostgresStore) FindBySourceID(ctx context.Context, sourceID string) (*listing.Record, error) {
	rec, err := scanPostgresRecord(s.pool.QueryRow(ctx, db.StmtListingBySource, sourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find listing %s: %w", sourceID, err)
	}
	return rec, nil
}

func (s *PostgresStore) Stale(ctx context.Context, days int) ([]listing.Record, error) {
	rows, err := s.pool.Query(ctx, db.StmtStaleListings, days)
	if err != nil {
		return nil, fmt.Errorf("query stale listings: %w", err)
	}
	defer rows.Close()

	var out []listing.Record
	for rows.Next() {
		rec, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale listing: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LogAudit(ctx context.Context, entity, entityID, action string, changes, metadata any) error {
	c, err := encodeJSON(changes)
	if err != nil {
		return err
	}
	m, err := encodeJSON(metadata)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, db.StmtInsertAudit, uuid.NewString(), entity, entityID, action, c, m); err != nil {
		return fmt.Errorf("insert audit %s: %w", action, err)
	}
	return nil
}

func (s *PostgresStore) AuditLog(ctx context.Context, entity, entityID string) ([]listing.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, db.StmtAuditByEntity, entity, entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []listing.AuditEntry
	for rows.Next() {
		var e listing.AuditEntry
		var changes, meta []byte
		if err := rows.Scan(&e.ID, &e.Entity, &e.EntityID, &e.Action, &changes, &meta, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Changes = changes
		e.Metadata = meta
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (listing.StoreStats, error) {
	var st listing.StoreStats
	err := s.pool.QueryRow(ctx, db.StmtListingStats).Scan(&st.Total, &st.Active, &st.Inactive, &st.AvgRating)
	if err != nil {
		return listing.StoreStats{}, fmt.Errorf("query stats: %w", err)
	}
	return st, nil
}

func scanPostgresRecord(row pgx.Row) (*listing.Record, error) {
	var (
		r                                          listing.Record
		desc, city, state, zip, phone, website     *string
		cats, cuisines, price, photos, source, sid *string
		hours, meta                                []byte
		reviewCount                                *int
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.Slug, &desc, &r.Address, &city, &state, &zip,
		&r.Latitude, &r.Longitude, &phone, &website, &cats, &cuisines,
		&hours, &price, &photos, &r.Rating, &reviewCount, &source,
		&sid, &meta, &r.Active, &r.CreatedAt, &r.UpdatedAt, &r.LastVerified,
	)
	if err != nil {
		return nil, err
	}

	r.Description = deref(desc)
	r.City = deref(city)
	r.State = deref(state)
	r.Zip = deref(zip)
	r.Phone = deref(phone)
	r.Website = deref(website)
	r.Categories = splitList(deref(cats))
	r.CuisineTypes = splitList(deref(cuisines))
	r.PriceLevel = listing.PriceLevel(deref(price))
	r.Photos = splitList(deref(photos))
	r.Source = deref(source)
	r.SourceID = deref(sid)
	r.Metadata = meta
	if reviewCount != nil {
		r.ReviewCount = *reviewCount
	}
	if r.Hours, err = decodeHours(hours); err != nil {
		return nil, err
	}
	return &r, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
