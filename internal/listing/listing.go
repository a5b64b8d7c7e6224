// Package listing defines the canonical restaurant record persisted by the
// store, plus the audit and statistics shapes that travel with it.
package listing

import (
	"encoding/json"
	"time"
)

// Source identifies where a record came from.
const Source = "google_places"

// Audit vocabulary for sync runs.
const (
	AuditEntityRestaurant = "Restaurant"
	AuditEntitySystem     = "system"
	ActionSync            = "RESTAURANT_SYNC"
	ActionSyncFailed      = "RESTAURANT_SYNC_FAILED"
)

type PriceLevel string

const (
	PriceBudget    PriceLevel = "BUDGET"
	PriceModerate  PriceLevel = "MODERATE"
	PriceExpensive PriceLevel = "EXPENSIVE"
	PriceLuxury    PriceLevel = "LUXURY"
)

// DayHours is one day's opening window. Close is empty for "24 hours".
type DayHours struct {
	Open  string `json:"open"`
	Close string `json:"close,omitempty"`
}

// Hours maps a day name ("Sunday".."Saturday") to its window.
type Hours map[string]DayHours

// Record is a persisted restaurant listing. SourceID is the upsert key; ID,
// Slug and CreatedAt never change after the first insert.
type Record struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Slug         string          `json:"slug"`
	Description  string          `json:"description,omitempty"`
	Address      string          `json:"address"`
	City         string          `json:"city"`
	State        string          `json:"state"`
	Zip          string          `json:"zip_code,omitempty"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	Phone        string          `json:"phone,omitempty"`
	Website      string          `json:"website,omitempty"`
	Categories   []string        `json:"categories"`
	CuisineTypes []string        `json:"cuisine_types"`
	Hours        Hours           `json:"hours,omitempty"`
	PriceLevel   PriceLevel      `json:"price_level"`
	Photos       []string        `json:"photos,omitempty"`
	Rating       *float64        `json:"rating,omitempty"`
	ReviewCount  int             `json:"review_count"`
	Source       string          `json:"source"`
	SourceID     string          `json:"source_id"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Active       bool            `json:"active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	LastVerified *time.Time      `json:"last_verified,omitempty"`
}

// AuditEntry is an append-only log line.
type AuditEntry struct {
	ID        string          `json:"id"`
	Entity    string          `json:"entity"`
	EntityID  string          `json:"entity_id"`
	Action    string          `json:"action"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// StoreStats is a point-in-time snapshot of the listing table.
type StoreStats struct {
	Total     int     `json:"total"`
	Active    int     `json:"active"`
	Inactive  int     `json:"inactive"`
	AvgRating float64 `json:"avg_rating"`
}
