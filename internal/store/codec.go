package store

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ekaty/ekaty-agent/internal/listing"
)

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// joinList and splitList store label lists as comma separated text, the
// format downstream consumers of the restaurants table read.
func joinList(v []string) string {
	return strings.Join(v, ",")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func encodeHours(h listing.Hours) ([]byte, error) {
	if len(h) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode hours: %w", err)
	}
	return b, nil
}

func decodeHours(b []byte) (listing.Hours, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var h listing.Hours
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, fmt.Errorf("decode hours: %w", err)
	}
	return h, nil
}

// encodeJSON marshals an audit payload. Raw messages pass through.
func encodeJSON(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(x) == 0 {
			return nil, nil
		}
		return x, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode audit payload: %w", err)
	}
	return b, nil
}

func roundRating(v float64) float64 {
	return math.Round(v*100) / 100
}
