package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/ekaty/ekaty-agent/internal/listing"
)

const (
	restaurantsTable = "restaurants"
	auditTable       = "audit_logs"
)

var listingColumns = []string{
	"id", "name", "slug", "description", "address", "city", "state", "zip_code",
	"latitude", "longitude", "phone", "website", "categories", "cuisine_types",
	"hours", "price_level", "photos", "rating", "review_count", "source",
	"source_id", "metadata", "active", "created_at", "updated_at", "last_verified",
}

var auditColumns = []string{"id", "entity", "entity_id", "action", "changes", "metadata", "created_at"}

// SQLiteStore is the file-backed Store. All access goes through a single
// connection, so writes are serialized by database/sql.
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) { s.now = now }
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations. Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger, opts ...SQLiteOption) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := Migrate(ctx, db, goose.DialectSQLite3, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, now: time.Now, logger: logger.With("component", "store", "backend", "sqlite")}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// DB exposes the underlying handle for maintenance tooling and tests.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Upsert implements Store using find-then-insert/update in one transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *listing.Record) (string, error) {
	if rec.SourceID == "" {
		return "", ErrMissingSourceID
	}
	fields, err := s.recordFields(rec)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sq.Select("id").From(restaurantsTable).
		Where(sq.Eq{"source_id": rec.SourceID}).Limit(1).ToSql()
	if err != nil {
		return "", fmt.Errorf("build lookup: %w", err)
	}

	now := formatTime(s.now())
	fields["updated_at"] = now
	fields["last_verified"] = now

	var id string
	err = tx.QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id = uuid.NewString()
		fields["id"] = id
		fields["slug"] = rec.Slug
		fields["created_at"] = now
		query, args, err = sq.Insert(restaurantsTable).SetMap(fields).ToSql()
		if err != nil {
			return "", fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return "", fmt.Errorf("insert listing %s: %w", rec.SourceID, err)
		}
		s.logger.Debug("Listing inserted", "id", id, "name", rec.Name)
	case err != nil:
		return "", fmt.Errorf("lookup listing %s: %w", rec.SourceID, err)
	default:
		query, args, err = sq.Update(restaurantsTable).SetMap(fields).Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return "", fmt.Errorf("build update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return "", fmt.Errorf("update listing %s: %w", rec.SourceID, err)
		}
		s.logger.Debug("Listing updated", "id", id, "name", rec.Name)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit upsert: %w", err)
	}
	return id, nil
}

// recordFields holds the columns both insert and update write.
func (s *SQLiteStore) recordFields(rec *listing.Record) (map[string]any, error) {
	hours, err := encodeHours(rec.Hours)
	if err != nil {
		return nil, err
	}
	source := rec.Source
	if source == "" {
		source = listing.Source
	}
	price := rec.PriceLevel
	if price == "" {
		price = listing.PriceModerate
	}
	return map[string]any{
		"name":          rec.Name,
		"description":   nullString(rec.Description),
		"address":       rec.Address,
		"city":          rec.City,
		"state":         rec.State,
		"zip_code":      nullString(rec.Zip),
		"latitude":      rec.Latitude,
		"longitude":     rec.Longitude,
		"phone":         nullString(rec.Phone),
		"website":       nullString(rec.Website),
		"categories":    joinList(rec.Categories),
		"cuisine_types": joinList(rec.CuisineTypes),
		"hours":         nullBytes(hours),
		"price_level":   string(price),
		"photos":        nullString(joinList(rec.Photos)),
		"rating":        rec.Rating,
		"review_count":  rec.ReviewCount,
		"source":        source,
		"source_id":     rec.SourceID,
		"metadata":      nullBytes(rec.Metadata),
		"active":        boolToInt(rec.Active),
	}, nil
}

func (s *SQLiteStore) FindBySourceID(ctx context.Context, sourceID string) (*listing.Record, error) {
	query, args, err := sq.Select(listingColumns...).From(restaurantsTable).
		Where(sq.Eq{"source_id": sourceID}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find: %w", err)
	}
	rec, err := scanSQLiteRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find listing %s: %w", sourceID, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Stale(ctx context.Context, days int) ([]listing.Record, error) {
	cutoff := formatTime(s.now().Add(-time.Duration(days) * 24 * time.Hour))
	query, args, err := sq.Select(listingColumns...).From(restaurantsTable).
		Where(sq.Or{sq.Lt{"last_verified": cutoff}, sq.Eq{"last_verified": nil}}).
		OrderBy("last_verified IS NOT NULL", "last_verified ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stale query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stale listings: %w", err)
	}
	defer rows.Close()

	var out []listing.Record
	for rows.Next() {
		rec, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale listing: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LogAudit(ctx context.Context, entity, entityID, action string, changes, metadata any) error {
	c, err := encodeJSON(changes)
	if err != nil {
		return err
	}
	m, err := encodeJSON(metadata)
	if err != nil {
		return err
	}

	query, args, err := sq.Insert(auditTable).Columns(auditColumns...).
		Values(uuid.NewString(), entity, entityID, action, nullBytes(c), nullBytes(m), formatTime(s.now())).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit %s: %w", action, err)
	}
	return nil
}

func (s *SQLiteStore) AuditLog(ctx context.Context, entity, entityID string) ([]listing.AuditEntry, error) {
	query, args, err := sq.Select(auditColumns...).From(auditTable).
		Where(sq.Eq{"entity": entity, "entity_id": entityID}).
		OrderBy("created_at ASC", "rowid ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []listing.AuditEntry
	for rows.Next() {
		var (
			e         listing.AuditEntry
			changes   sql.NullString
			meta      sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Entity, &e.EntityID, &e.Action, &changes, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if changes.Valid {
			e.Changes = []byte(changes.String)
		}
		if meta.Valid {
			e.Metadata = []byte(meta.String)
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (listing.StoreStats, error) {
	query, args, err := sq.Select(
		"COUNT(*)",
		"COALESCE(SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), 0)",
		"COALESCE(SUM(CASE WHEN active = 0 THEN 1 ELSE 0 END), 0)",
		"AVG(rating)",
	).From(restaurantsTable).ToSql()
	if err != nil {
		return listing.StoreStats{}, fmt.Errorf("build stats query: %w", err)
	}

	var (
		st  listing.StoreStats
		avg sql.NullFloat64
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&st.Total, &st.Active, &st.Inactive, &avg); err != nil {
		return listing.StoreStats{}, fmt.Errorf("query stats: %w", err)
	}
	if avg.Valid {
		st.AvgRating = roundRating(avg.Float64)
	}
	return st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*listing.Record, error) {
	var (
		r                                      listing.Record
		desc, city, state, zip, phone, website sql.NullString
		cats, cuisines, hours, price, photos   sql.NullString
		source, sourceID, meta, verified       sql.NullString
		rating                                 sql.NullFloat64
		reviewCount                            sql.NullInt64
		active                                 int64
		createdAt, updatedAt                   string
	)
	err := row.Scan(
		&r.ID, &r.Name, &r.Slug, &desc, &r.Address, &city, &state, &zip,
		&r.Latitude, &r.Longitude, &phone, &website, &cats, &cuisines,
		&hours, &price, &photos, &rating, &reviewCount, &source,
		&sourceID, &meta, &active, &createdAt, &updatedAt, &verified,
	)
	if err != nil {
		return nil, err
	}

	r.Description = desc.String
	r.City = city.String
	r.State = state.String
	r.Zip = zip.String
	r.Phone = phone.String
	r.Website = website.String
	r.Categories = splitList(cats.String)
	r.CuisineTypes = splitList(cuisines.String)
	r.PriceLevel = listing.PriceLevel(price.String)
	r.Photos = splitList(photos.String)
	r.ReviewCount = int(reviewCount.Int64)
	r.Source = source.String
	r.SourceID = sourceID.String
	r.Active = active != 0
	if rating.Valid {
		v := rating.Float64
		r.Rating = &v
	}
	if meta.Valid {
		r.Metadata = []byte(meta.String)
	}
	if r.Hours, err = decodeHours([]byte(hours.String)); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if verified.Valid && strings.TrimSpace(verified.String) != "" {
		t, err := parseTime(verified.String)
		if err != nil {
			return nil, err
		}
		r.LastVerified = &t
	}
	return &r, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
