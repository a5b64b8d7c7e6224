package syncer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ekaty/ekaty-agent/internal/listing"
)

// Stats tracks counts for one sync run. It is created fresh per run and
// passed by pointer through every phase.
type Stats struct {
	Discovered  int           `json:"discovered"`
	Detailed    int           `json:"detailed"`
	Transformed int           `json:"transformed"`
	Imported    int           `json:"imported"`
	Errors      int           `json:"errors"`
	Stale       int           `json:"stale"`
	Duration    time.Duration `json:"-"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`

	// Store snapshot taken at the end of a successful run.
	listing.StoreStats
}

// MarshalJSON renders Duration as seconds.
func (s Stats) MarshalJSON() ([]byte, error) {
	type plain Stats
	return json.Marshal(struct {
		plain
		Duration float64 `json:"duration"`
	}{plain: plain(s), Duration: s.Duration.Seconds()})
}

// Summary returns a human-readable summary of the run.
func (s *Stats) Summary() string {
	return fmt.Sprintf(
		"discovered=%d detailed=%d transformed=%d imported=%d errors=%d stale=%d duration=%s",
		s.Discovered, s.Detailed, s.Transformed, s.Imported, s.Errors, s.Stale,
		s.Duration.Round(time.Millisecond),
	)
}
