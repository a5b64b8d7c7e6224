// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking for the Postgres listing store.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaty/ekaty-agent/internal/config"
	"github.com/ekaty/ekaty-agent/internal/retry"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool. The schema must already
// be migrated, since every connection prepares statements against it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity; a freshly started database may need a moment.
	_, err = retry.Do(ctx, retry.Policy{
		MaxRetries: 3,
		Delay:      time.Second,
		OnRetry: func(attempt int, err error) {
			logger.Warn("Database ping failed, retrying", "attempt", attempt, "error", err)
		},
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Statement names shared with the Postgres store.
const (
	StmtUpsertListing   = "listing_upsert"
	StmtListingBySource = "listing_by_source_id"
	StmtStaleListings   = "listing_stale"
	StmtListingStats    = "listing_stats"
	StmtInsertAudit     = "audit_insert"
	StmtAuditByEntity   = "audit_by_entity"
)

// ListingColumns is the column order every listing statement uses.
const ListingColumns = `id, name, slug, description, address, city, state, zip_code, latitude, longitude, phone, website, categories, cuisine_types, hours, price_level, photos, rating, review_count, source, source_id, metadata, active, created_at, updated_at, last_verified`

// AuditColumns is the column order of audit statements.
const AuditColumns = `id, entity, entity_id, action, changes, metadata, created_at`

// registerPreparedStatements registers all statements the store uses.
// Prepared statements eliminate parse overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Listings: upsert keyed by source_id. slug and created_at are
		// written once and never touched by the update branch.
		StmtUpsertListing: `
			INSERT INTO restaurants (` + ListingColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, NOW(), NOW(), NOW())
			ON CONFLICT (source_id) DO UPDATE SET
				name = EXCLUDED.name,
				description = EXCLUDED.description,
				address = EXCLUDED.address,
				city = EXCLUDED.city,
				state = EXCLUDED.state,
				zip_code = EXCLUDED.zip_code,
				latitude = EXCLUDED.latitude,
				longitude = EXCLUDED.longitude,
				phone = EXCLUDED.phone,
				website = EXCLUDED.website,
				categories = EXCLUDED.categories,
				cuisine_types = EXCLUDED.cuisine_types,
				hours = EXCLUDED.hours,
				price_level = EXCLUDED.price_level,
				photos = EXCLUDED.photos,
				rating = EXCLUDED.rating,
				review_count = EXCLUDED.review_count,
				source = EXCLUDED.source,
				metadata = EXCLUDED.metadata,
				active = EXCLUDED.active,
				updated_at = NOW(),
				last_verified = NOW()
			RETURNING id`,
		StmtListingBySource: "SELECT " + ListingColumns + " FROM restaurants WHERE source_id = $1 LIMIT 1",
		StmtStaleListings: "SELECT " + ListingColumns + ` FROM restaurants
			WHERE last_verified < NOW() - make_interval(days => $1) OR last_verified IS NULL
			ORDER BY last_verified ASC NULLS FIRST`,
		StmtListingStats: `
			SELECT COUNT(*),
			       COUNT(*) FILTER (WHERE active),
			       COUNT(*) FILTER (WHERE NOT active),
			       COALESCE(ROUND(AVG(rating)::numeric, 2), 0)::float8
			FROM restaurants`,

		// Audit log
		StmtInsertAudit:   "INSERT INTO audit_logs (" + AuditColumns + ") VALUES ($1, $2, $3, $4, $5, $6, NOW())",
		StmtAuditByEntity: "SELECT " + AuditColumns + " FROM audit_logs WHERE entity = $1 AND entity_id = $2 ORDER BY created_at ASC, id ASC",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
