package syncer

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ekaty/ekaty-agent/internal/places"
	"github.com/ekaty/ekaty-agent/internal/retry"
)

// progressEvery controls how often FetchAll logs progress.
const progressEvery = 10

// DetailSource fetches the full record for one place.
type DetailSource interface {
	Details(ctx context.Context, placeID string) (*places.PlaceDetail, error)
}

// FetcherOptions configures a DetailFetcher.
type FetcherOptions struct {
	MaxRetries int
	RetryDelay time.Duration

	// Workers bounds concurrent detail requests. 1 or less is sequential.
	Workers int

	// Sleep overrides the wait between retries.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DetailFetcher fetches details for discovered stubs with per-item retry.
// A stub that exhausts its retries is counted and skipped.
type DetailFetcher struct {
	source DetailSource
	opts   FetcherOptions
	logger *slog.Logger
}

// NewDetailFetcher creates a DetailFetcher.
func NewDetailFetcher(source DetailSource, opts FetcherOptions, logger *slog.Logger) *DetailFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &DetailFetcher{source: source, opts: opts, logger: logger.With("component", "details")}
}

// Fetch gets one place's details, retrying with a fixed delay.
func (f *DetailFetcher) Fetch(ctx context.Context, placeID string) (*places.PlaceDetail, error) {
	return retry.Do(ctx, retry.Policy{
		MaxRetries: f.opts.MaxRetries,
		Delay:      f.opts.RetryDelay,
		Sleep:      f.opts.Sleep,
		OnRetry: func(attempt int, err error) {
			f.logger.Warn("Retrying place details",
				"place_id", placeID, "attempt", attempt, "max", f.opts.MaxRetries, "error", err)
		},
	}, func(ctx context.Context) (*places.PlaceDetail, error) {
		return f.source.Details(ctx, placeID)
	})
}

// FetchAll fetches details for every stub. Output order follows input order.
// Per-item failures increment stats.Errors; only cancellation aborts.
func (f *DetailFetcher) FetchAll(ctx context.Context, stubs []places.PlaceStub, stats *Stats) ([]*places.PlaceDetail, error) {
	results := make([]*places.PlaceDetail, len(stubs))
	var processed, failed atomic.Int64

	fetchOne := func(ctx context.Context, i int) error {
		stub := stubs[i]
		defer f.reportProgress(processed.Add(1), len(stubs))

		if stub.ExternalID == "" {
			f.logger.Warn("Skipping place without place_id", "name", stub.Name)
			return nil
		}
		f.logger.Debug("Fetching details",
			"progress", i+1, "total", len(stubs), "place_id", stub.ExternalID, "name", stub.Name)

		d, err := f.Fetch(ctx, stub.ExternalID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed.Add(1)
			f.logger.Error("Failed to fetch place details after retries",
				"place_id", stub.ExternalID, "retries", f.opts.MaxRetries, "error", err)
			return nil
		}
		results[i] = d
		return nil
	}

	var err error
	if f.opts.Workers <= 1 {
		for i := range stubs {
			if err = fetchOne(ctx, i); err != nil {
				break
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(f.opts.Workers)
		for i := range stubs {
			i := i
			g.Go(func() error { return fetchOne(gctx, i) })
		}
		err = g.Wait()
	}

	stats.Errors += int(failed.Load())
	if err != nil {
		return nil, err
	}

	out := make([]*places.PlaceDetail, 0, len(stubs))
	for _, d := range results {
		if d != nil {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *DetailFetcher) reportProgress(done int64, total int) {
	if done%progressEvery != 0 {
		return
	}
	f.logger.Info("Progress update",
		"fetched", done,
		"total", total,
		"percent", float64(done*1000/int64(total))/10)
}
