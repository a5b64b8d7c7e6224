// Package discovery enumerates every place in a search area by issuing
// paginated nearby searches over a fixed set of overlapping tiles.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ekaty/ekaty-agent/internal/places"
	"github.com/ekaty/ekaty-agent/internal/retry"
)

// Searcher fetches one page of nearby search results.
type Searcher interface {
	NearbySearch(ctx context.Context, req places.NearbyRequest) (*places.SearchPage, error)
}

// Options configures a TileSearch.
type Options struct {
	PlaceType string

	// PageTokenDelay is waited before requesting a page by token; the
	// upstream rejects tokens used too soon after issue.
	PageTokenDelay time.Duration

	// Sleep overrides the wait between pages. Nil uses retry.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// TileSearch discovers places across tiles and deduplicates them by id.
type TileSearch struct {
	searcher Searcher
	opts     Options
	logger   *slog.Logger
}

// New creates a TileSearch.
func New(searcher Searcher, opts Options, logger *slog.Logger) *TileSearch {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	return &TileSearch{searcher: searcher, opts: opts, logger: logger.With("component", "discovery")}
}

// Discover searches every tile around center and returns unique stubs in the
// order they were first seen. Any upstream error aborts the whole call.
func (t *TileSearch) Discover(ctx context.Context, center places.LatLng, radius int) ([]places.PlaceStub, error) {
	tiles := TileCenters(center, radius)
	t.logger.Info("Starting tile search",
		"center", fmt.Sprintf("%f,%f", center.Lat, center.Lng),
		"radius", radius,
		"tiles", len(tiles))

	seen := make(map[string]struct{})
	var stubs []places.PlaceStub

	for i, tile := range tiles {
		added, pages, err := t.searchTile(ctx, tile, radius, seen, &stubs)
		if err != nil {
			return nil, fmt.Errorf("tile %d/%d: %w", i+1, len(tiles), err)
		}
		t.logger.Info("Tile searched",
			"tile", i+1,
			"lat", tile.Lat, "lng", tile.Lng,
			"pages", pages,
			"new", added,
			"total", len(stubs))
	}

	t.logger.Info("Tile search complete", "unique_places", len(stubs), "tiles", len(tiles))
	return stubs, nil
}

func (t *TileSearch) searchTile(ctx context.Context, tile places.LatLng, radius int, seen map[string]struct{}, out *[]places.PlaceStub) (added, pages int, err error) {
	token := ""
	for {
		if token != "" {
			if err := t.opts.Sleep(ctx, t.opts.PageTokenDelay); err != nil {
				return added, pages, err
			}
		}

		page, err := t.searcher.NearbySearch(ctx, places.NearbyRequest{
			Location:  tile,
			Radius:    radius,
			Type:      t.opts.PlaceType,
			PageToken: token,
		})
		if err != nil {
			return added, pages, err
		}
		pages++

		for _, s := range page.Stubs {
			if s.ExternalID == "" {
				t.logger.Warn("Skipping search result without place id", "name", s.Name)
				continue
			}
			if _, dup := seen[s.ExternalID]; dup {
				continue
			}
			seen[s.ExternalID] = struct{}{}
			*out = append(*out, s)
			added++
		}

		if page.NextPageToken == "" {
			return added, pages, nil
		}
		token = page.NextPageToken
	}
}
