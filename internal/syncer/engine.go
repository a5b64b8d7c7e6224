// Package syncer orchestrates a full listing sync: discovery, detail fetch,
// transform, import and a staleness sweep, followed by one audit entry.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ekaty/ekaty-agent/internal/listing"
	"github.com/ekaty/ekaty-agent/internal/places"
	"github.com/ekaty/ekaty-agent/internal/store"
	"github.com/ekaty/ekaty-agent/internal/transform"
)

// ErrRunInProgress is returned when Sync is called while another run holds
// the engine.
var ErrRunInProgress = errors.New("sync already in progress")

// DefaultStaleDays is the staleness threshold used by the cleanup phase.
const DefaultStaleDays = 30

// Phase is the engine's position in the run state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDiscovering
	PhaseFetchingDetails
	PhaseTransforming
	PhaseImporting
	PhaseCleaningUp
	PhaseComplete
	PhaseFailed
)

var phaseNames = [...]string{
	PhaseIdle:            "idle",
	PhaseDiscovering:     "discovering",
	PhaseFetchingDetails: "fetching_details",
	PhaseTransforming:    "transforming",
	PhaseImporting:       "importing",
	PhaseCleaningUp:      "cleaning_up",
	PhaseComplete:        "complete",
	PhaseFailed:          "failed",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// Discoverer enumerates candidate places around a center.
type Discoverer interface {
	Discover(ctx context.Context, center places.LatLng, radius int) ([]places.PlaceStub, error)
}

// Options configures an Engine.
type Options struct {
	Center    places.LatLng
	Radius    int
	StaleDays int

	// DryRun runs discovery, details and transform but skips every write.
	DryRun bool
}

// VerifyResult is the outcome of re-verifying a single place.
type VerifyResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Name    string `json:"name,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Engine runs sync passes. One run at a time.
type Engine struct {
	discoverer  Discoverer
	fetcher     *DetailFetcher
	transformer *transform.Transformer
	store       store.Store
	opts        Options
	logger      *slog.Logger

	run sync.Mutex

	mu    sync.RWMutex
	phase Phase
	last  *Stats
}

// NewEngine creates an Engine.
func NewEngine(d Discoverer, f *DetailFetcher, t *transform.Transformer, s store.Store, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.StaleDays <= 0 {
		opts.StaleDays = DefaultStaleDays
	}
	return &Engine{
		discoverer:  d,
		fetcher:     f,
		transformer: t,
		store:       s,
		opts:        opts,
		logger:      logger.With("component", "sync"),
	}
}

// Phase reports the current state.
func (e *Engine) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.phase
}

// LastRun returns a copy of the most recent run's stats, or nil.
func (e *Engine) LastRun() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.last == nil {
		return nil
	}
	cp := *e.last
	return &cp
}

func (e *Engine) setPhase(p Phase) {
	e.mu.Lock()
	e.phase = p
	e.mu.Unlock()
	e.logger.Debug("Phase changed", "phase", p.String())
}

// Sync executes one full run. On failure the returned stats carry the error
// and a RESTAURANT_SYNC_FAILED audit entry is written before returning it.
func (e *Engine) Sync(ctx context.Context) (*Stats, error) {
	if !e.run.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.run.Unlock()
	return e.syncLocked(ctx)
}

// Start claims the engine and runs Sync in the background, calling done (if
// non-nil) with the outcome. It returns ErrRunInProgress without starting
// anything when a run is already active.
func (e *Engine) Start(ctx context.Context, done func(*Stats, error)) error {
	if !e.run.TryLock() {
		return ErrRunInProgress
	}
	go func() {
		defer e.run.Unlock()
		stats, err := e.syncLocked(ctx)
		if done != nil {
			done(stats, err)
		}
	}()
	return nil
}

func (e *Engine) syncLocked(ctx context.Context) (*Stats, error) {
	e.logger.Info("=== Starting restaurant sync ===", "dry_run", e.opts.DryRun)
	start := time.Now()
	stats := &Stats{}

	err := e.execute(ctx, stats)
	stats.Duration = time.Since(start)

	if err != nil {
		stats.Success = false
		stats.Error = err.Error()
		e.setPhase(PhaseFailed)
		e.logger.Error("Sync failed", "error", err, "summary", stats.Summary())

		if !e.opts.DryRun {
			meta := map[string]any{"error": err.Error(), "stats": stats}
			if aerr := e.store.LogAudit(context.WithoutCancel(ctx), listing.AuditEntityRestaurant, listing.AuditEntitySystem, listing.ActionSyncFailed, nil, meta); aerr != nil {
				e.logger.Warn("Failed to write failure audit entry", "error", aerr)
			}
		}
		e.remember(stats)
		return stats, err
	}

	stats.Success = true
	e.setPhase(PhaseComplete)
	if !e.opts.DryRun {
		if aerr := e.store.LogAudit(ctx, listing.AuditEntityRestaurant, listing.AuditEntitySystem, listing.ActionSync, stats, nil); aerr != nil {
			e.logger.Warn("Failed to write audit entry", "error", aerr)
		}
	}
	e.logger.Info("=== Sync complete ===", "summary", stats.Summary(), "total", stats.Total, "active", stats.Active)
	e.remember(stats)
	return stats, nil
}

func (e *Engine) remember(s *Stats) {
	cp := *s
	e.mu.Lock()
	e.last = &cp
	e.mu.Unlock()
}

func (e *Engine) execute(ctx context.Context, stats *Stats) error {
	e.setPhase(PhaseDiscovering)
	e.logger.Info("Step 1: Discovering places", "radius", e.opts.Radius)
	stubs, err := e.discoverer.Discover(ctx, e.opts.Center, e.opts.Radius)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	stats.Discovered = len(stubs)

	e.setPhase(PhaseFetchingDetails)
	e.logger.Info("Step 2: Fetching details", "count", len(stubs))
	details, err := e.fetcher.FetchAll(ctx, stubs, stats)
	if err != nil {
		return fmt.Errorf("fetch details: %w", err)
	}
	stats.Detailed = len(details)

	e.setPhase(PhaseTransforming)
	e.logger.Info("Step 3: Transforming records", "count", len(details))
	records, transformErrors := e.transformer.TransformAll(details)
	stats.Transformed = len(records)
	stats.Errors += transformErrors

	e.setPhase(PhaseImporting)
	if e.opts.DryRun {
		e.logger.Info("Step 4: Import skipped (dry run)", "count", len(records))
	} else {
		e.logger.Info("Step 4: Importing records", "count", len(records))
		if err := e.importRecords(ctx, records, stats); err != nil {
			return err
		}
	}

	e.setPhase(PhaseCleaningUp)
	e.logger.Info("Step 5: Running cleanup", "stale_days", e.opts.StaleDays)
	return e.cleanup(ctx, stats)
}

func (e *Engine) importRecords(ctx context.Context, records []*listing.Record, stats *Stats) error {
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := e.store.Upsert(ctx, rec); err != nil {
			stats.Errors++
			e.logger.Error("Failed to import restaurant", "name", rec.Name, "source_id", rec.SourceID, "error", err)
			continue
		}
		stats.Imported++
	}
	return nil
}

// cleanup counts stale listings and snapshots the store. Stale rows are only
// reported; nothing is deactivated.
func (e *Engine) cleanup(ctx context.Context, stats *Stats) error {
	stale, err := e.store.Stale(ctx, e.opts.StaleDays)
	if err != nil {
		return fmt.Errorf("stale sweep: %w", err)
	}
	for _, r := range stale {
		e.logger.Info("Found stale restaurant", "name", r.Name, "last_verified", r.LastVerified)
	}
	stats.Stale = len(stale)

	snapshot, err := e.store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("store stats: %w", err)
	}
	stats.StoreStats = snapshot
	return nil
}

// VerifyRestaurant re-fetches, transforms and upserts one place. Failures
// are reported in the result, never as an error.
func (e *Engine) VerifyRestaurant(ctx context.Context, placeID string) VerifyResult {
	e.logger.Info("Verifying restaurant", "place_id", placeID)

	fail := func(err error) VerifyResult {
		e.logger.Error("Restaurant verification failed", "place_id", placeID, "error", err)
		return VerifyResult{Success: false, Error: err.Error()}
	}

	d, err := e.fetcher.Fetch(ctx, placeID)
	if err != nil {
		return fail(err)
	}
	rec, err := e.transformer.Transform(d)
	if err != nil {
		return fail(err)
	}
	if e.opts.DryRun {
		return VerifyResult{Success: true, Name: rec.Name}
	}
	id, err := e.store.Upsert(ctx, rec)
	if err != nil {
		return fail(err)
	}

	e.logger.Info("Restaurant verified", "place_id", placeID, "id", id, "name", rec.Name)
	return VerifyResult{Success: true, ID: id, Name: rec.Name}
}

// Stats merges the last run's counters with a fresh store snapshot.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	out := e.LastRun()
	if out == nil {
		out = &Stats{}
	}
	snapshot, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out.StoreStats = snapshot
	return out, nil
}
