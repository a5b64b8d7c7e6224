// Package maintenance runs periodic background tasks as Go tickers: the
// scheduled full sync and a stale-listing report.
package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ekaty/ekaty-agent/internal/listing"
	"github.com/ekaty/ekaty-agent/internal/syncer"
)

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	SyncInterval        time.Duration // Full discovery + import pass
	StaleReportInterval time.Duration // Log listings overdue for verification
	StaleDays           int
}

// DefaultConfig returns production defaults. Scheduled sync is off unless
// SYNC_INTERVAL is configured.
func DefaultConfig() Config {
	return Config{
		StaleReportInterval: 24 * time.Hour,
		StaleDays:           syncer.DefaultStaleDays,
	}
}

// Syncer runs one full sync.
type Syncer interface {
	Sync(ctx context.Context) (*syncer.Stats, error)
}

// StaleLister lists listings overdue for verification.
type StaleLister interface {
	Stale(ctx context.Context, days int) ([]listing.Record, error)
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, eng Syncer, st StaleLister, cfg Config, onSync func(*syncer.Stats, error), logger *slog.Logger) {
	logger.Info("Maintenance tickers started",
		"sync", cfg.SyncInterval,
		"stale_report", cfg.StaleReportInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.SyncInterval > 0 {
		t := time.NewTicker(cfg.SyncInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { scheduledSync(ctx, eng, onSync, logger) })
	}

	if cfg.StaleReportInterval > 0 {
		t := time.NewTicker(cfg.StaleReportInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { staleReport(ctx, st, cfg.StaleDays, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// scheduledSync runs a sync unless one started elsewhere is still going.
func scheduledSync(ctx context.Context, eng Syncer, onSync func(*syncer.Stats, error), logger *slog.Logger) {
	stats, err := eng.Sync(ctx)
	if errors.Is(err, syncer.ErrRunInProgress) {
		logger.Info("Scheduled sync skipped: run already in progress")
		return
	}
	if onSync != nil {
		onSync(stats, err)
	}
}

const staleSampleSize = 5

func staleReport(ctx context.Context, st StaleLister, days int, logger *slog.Logger) {
	rows, err := st.Stale(ctx, days)
	if err != nil {
		logger.Warn("Stale report: query failed", "error", err)
		return
	}
	if len(rows) == 0 {
		logger.Info("Stale report: all listings verified recently", "days", days)
		return
	}

	sample := make([]string, 0, staleSampleSize)
	for _, r := range rows {
		if len(sample) == staleSampleSize {
			break
		}
		sample = append(sample, r.Name)
	}
	logger.Warn("Stale report: listings need verification",
		"days", days, "count", len(rows), "sample", sample)
}
