package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ekaty/ekaty-agent/internal/api/respond"
	"github.com/ekaty/ekaty-agent/internal/cache"
	"github.com/ekaty/ekaty-agent/internal/listing"
	"github.com/ekaty/ekaty-agent/internal/store"
)

// Cache key prefixes. Everything under listingKeyPrefix is dropped after a
// sync or verify.
const (
	statsKey         = "listing:stats"
	listingKeyPrefix = "listing:"
)

// statsResponse is cached, so it carries nothing that moves during a run.
// The live phase is served by GET /api/v1/sync.
type statsResponse struct {
	Sync any `json:"sync"`
}

type staleResponse struct {
	Days     int              `json:"days"`
	Count    int              `json:"count"`
	Listings []listing.Record `json:"listings"`
}

// GetStats returns the last run's counters merged with a store snapshot.
// @Summary Sync and store statistics
// @Tags listings
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 500 {object} respond.ErrorResponse
// @Router /api/v1/stats [get]
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	h.serveCached(w, r, statsKey, cache.TTLStats, func() (any, error) {
		st, err := h.engine.Stats(r.Context())
		if err != nil {
			return nil, err
		}
		return statsResponse{Sync: st}, nil
	})
}

// GetStaleListings lists listings not verified within ?days= (default from
// config).
// @Summary Stale listings
// @Tags listings
// @Produce json
// @Param days query int false "Staleness threshold in days"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} respond.ErrorResponse
// @Router /api/v1/listings/stale [get]
func (h *Handler) GetStaleListings(w http.ResponseWriter, r *http.Request) {
	days := h.cfg.StaleDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respond.WriteError(w, http.StatusBadRequest, "INVALID_DAYS", "days must be a non-negative integer")
			return
		}
		days = n
	}

	key := fmt.Sprintf("%sstale:%d", listingKeyPrefix, days)
	h.serveCached(w, r, key, cache.TTLStale, func() (any, error) {
		rows, err := h.store.Stale(r.Context(), days)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []listing.Record{}
		}
		return staleResponse{Days: days, Count: len(rows), Listings: rows}, nil
	})
}

// GetListing returns one listing by its Places id.
// @Summary Listing by source id
// @Tags listings
// @Produce json
// @Param sourceID path string true "Google place_id"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} respond.ErrorResponse
// @Router /api/v1/listings/{sourceID} [get]
func (h *Handler) GetListing(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "sourceID")
	key := listingKeyPrefix + "source:" + sourceID

	h.serveCached(w, r, key, cache.TTLListing, func() (any, error) {
		return h.store.FindBySourceID(r.Context(), sourceID)
	})
}

// serveCached answers from cache when possible, otherwise loads, encodes and
// stores the value. store.ErrNotFound maps to 404.
func (h *Handler) serveCached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, load func() (any, error)) {
	if data, etag, ok := h.cache.Get(key); ok {
		if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
			respond.WriteNotModified(w, etag)
			return
		}
		respond.WriteJSON(w, data, etag, ttl, true)
		return
	}

	v, err := load()
	if errors.Is(err, store.ErrNotFound) {
		respond.WriteError(w, http.StatusNotFound, "NOT_FOUND", "Listing not found")
		return
	}
	if err != nil {
		h.logger.Error("Query failed", "key", key, "error", err)
		respond.WriteError(w, http.StatusInternalServerError, "DB_ERROR", "Database query failed")
		return
	}

	data, err := json.Marshal(v)
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "ENCODE_ERROR", "Failed to encode response")
		return
	}
	etag := h.cache.Set(key, data, ttl)
	if cache.CheckETagMatch(r.Header.Get("If-None-Match"), etag) {
		respond.WriteNotModified(w, etag)
		return
	}
	respond.WriteJSON(w, data, etag, ttl, false)
}
