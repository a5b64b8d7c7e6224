// Package store persists listing records and the audit log. Two backends are
// provided: SQLite (the default, file based) and PostgreSQL via pgxpool.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ekaty/ekaty-agent/internal/config"
	"github.com/ekaty/ekaty-agent/internal/listing"
)

// ErrNotFound is returned when no listing matches a lookup.
var ErrNotFound = errors.New("listing not found")

// ErrMissingSourceID is returned when upserting a record without a key.
var ErrMissingSourceID = errors.New("listing has no source_id")

// Store is the listing persistence contract used by the sync engine, the CLI
// and the HTTP API.
type Store interface {
	// Upsert inserts rec or updates the row with the same SourceID and
	// returns the stable row id. The update never changes id, slug or
	// created_at; both paths stamp updated_at and last_verified.
	Upsert(ctx context.Context, rec *listing.Record) (string, error)

	FindBySourceID(ctx context.Context, sourceID string) (*listing.Record, error)

	// Stale returns listings not verified within days, never-verified rows
	// first, then oldest first.
	Stale(ctx context.Context, days int) ([]listing.Record, error)

	// LogAudit appends one entry. changes and metadata are JSON encoded; nil
	// is stored as NULL.
	LogAudit(ctx context.Context, entity, entityID, action string, changes, metadata any) error

	AuditLog(ctx context.Context, entity, entityID string) ([]listing.AuditEntry, error)

	Stats(ctx context.Context) (listing.StoreStats, error)

	Ping(ctx context.Context) error
	Close() error
}

// Open migrates and opens the backend selected by cfg.DBType.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.DBType {
	case config.DBTypeSQLite:
		return OpenSQLite(ctx, cfg.DBPath, logger)
	case config.DBTypePostgres:
		return OpenPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}
