// Package health runs operator-facing checks: database, API key, Places API
// reachability and free disk space.
package health

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/ekaty/ekaty-agent/internal/discovery"
	"github.com/ekaty/ekaty-agent/internal/listing"
	"github.com/ekaty/ekaty-agent/internal/places"
)

// MinFreePercent is the lowest acceptable free disk share.
const MinFreePercent = 10.0

// probeRadius is the nearby search radius used to test API access.
const probeRadius = 1000

// Check is one named result.
type Check struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Report is the outcome of a full run.
type Report struct {
	Checks  []Check `json:"checks"`
	Healthy bool    `json:"healthy"`
}

// StatsReader is the store subset the database check needs.
type StatsReader interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (listing.StoreStats, error)
}

// Checker runs the configured checks.
type Checker struct {
	Store     StatsReader
	Searcher  discovery.Searcher
	APIKey    string
	Center    places.LatLng
	PlaceType string
	DiskPath  string

	// Statfs reports free and total bytes for a path. Nil uses statfs(2).
	Statfs func(path string) (free, total uint64, err error)
}

// Run executes every check in order.
func (c *Checker) Run(ctx context.Context) Report {
	checks := []Check{
		c.database(ctx),
		c.apiKey(),
		c.placesAPI(ctx),
		c.disk(),
	}
	healthy := true
	for _, ch := range checks {
		if !ch.OK {
			healthy = false
		}
	}
	return Report{Checks: checks, Healthy: healthy}
}

func (c *Checker) database(ctx context.Context) Check {
	ch := Check{Name: "Database Connection"}
	if c.Store == nil {
		ch.Message = "not configured"
		return ch
	}
	if err := c.Store.Ping(ctx); err != nil {
		ch.Message = err.Error()
		return ch
	}
	st, err := c.Store.Stats(ctx)
	if err != nil {
		ch.Message = err.Error()
		return ch
	}
	ch.OK = true
	ch.Message = fmt.Sprintf("%d restaurants", st.Total)
	return ch
}

func (c *Checker) apiKey() Check {
	ch := Check{Name: "Google API Key"}
	if c.APIKey == "" || c.APIKey == "your_api_key_here" {
		ch.Message = "API key not configured"
		return ch
	}
	prefix := c.APIKey
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}
	ch.OK = true
	ch.Message = "Configured (" + prefix + "...)"
	return ch
}

func (c *Checker) placesAPI(ctx context.Context) Check {
	ch := Check{Name: "Google API Access"}
	if c.Searcher == nil {
		ch.Message = "not configured"
		return ch
	}
	page, err := c.Searcher.NearbySearch(ctx, places.NearbyRequest{
		Location: c.Center,
		Radius:   probeRadius,
		Type:     c.PlaceType,
	})
	if err != nil {
		ch.Message = err.Error()
		return ch
	}
	ch.OK = true
	ch.Message = fmt.Sprintf("Connected (found %d nearby)", len(page.Stubs))
	return ch
}

func (c *Checker) disk() Check {
	ch := Check{Name: "Disk Space"}
	path := c.DiskPath
	if path == "" {
		path = "."
	}
	statfs := c.Statfs
	if statfs == nil {
		statfs = Statfs
	}

	free, total, err := statfs(path)
	if err != nil {
		ch.Message = err.Error()
		return ch
	}
	if total == 0 {
		ch.Message = "unable to determine disk size"
		return ch
	}
	pct := float64(free) / float64(total) * 100
	ch.OK = pct > MinFreePercent
	ch.Message = diskMessage(free, total)
	return ch
}

func diskMessage(free, total uint64) string {
	pct := float64(free) / float64(total) * 100
	return fmt.Sprintf("%.2f GB free (%.1f%%)", float64(free)/(1<<30), pct)
}

// Statfs reports free and total bytes on the filesystem holding path. A path
// that does not exist yet is resolved to its parent directory.
func Statfs(path string) (free, total uint64, err error) {
	var st unix.Statfs_t
	for {
		err = unix.Statfs(path, &st)
		if err == nil {
			break
		}
		parent := filepath.Dir(path)
		if err != unix.ENOENT || parent == path {
			return 0, 0, fmt.Errorf("statfs %s: %w", path, err)
		}
		path = parent
	}
	bsize := uint64(st.Bsize)
	return st.Bavail * bsize, st.Blocks * bsize, nil
}
