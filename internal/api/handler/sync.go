package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ekaty/ekaty-agent/internal/api/respond"
	"github.com/ekaty/ekaty-agent/internal/syncer"
)

// GetSyncStatus reports the engine phase and the last run, if any.
// @Summary Sync status
// @Tags sync
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/sync [get]
func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"phase":    h.engine.Phase().String(),
		"last_run": h.engine.LastRun(),
	})
}

// StartSync kicks off a full sync in the background.
// @Summary Start a sync
// @Tags sync
// @Produce json
// @Success 202 {object} map[string]interface{}
// @Failure 409 {object} respond.ErrorResponse
// @Failure 503 {object} respond.ErrorResponse
// @Router /api/v1/sync [post]
func (h *Handler) StartSync(w http.ResponseWriter, r *http.Request) {
	if !h.cfg.SyncEnabled && r.URL.Query().Get("force") != "true" {
		respond.WriteError(w, http.StatusServiceUnavailable, "SYNC_DISABLED", "Sync is disabled (pass ?force=true to override)")
		return
	}
	if !h.cfg.HasAPIKey() {
		respond.WriteError(w, http.StatusServiceUnavailable, "API_KEY_MISSING", "GOOGLE_API_KEY is not configured")
		return
	}

	err := h.engine.Start(h.baseCtx, h.syncFinished)
	if errors.Is(err, syncer.ErrRunInProgress) {
		respond.WriteError(w, http.StatusConflict, "SYNC_IN_PROGRESS", "A sync is already running")
		return
	}
	if err != nil {
		respond.WriteErrorDetail(w, http.StatusInternalServerError, "SYNC_ERROR", "Failed to start sync", err.Error())
		return
	}

	h.cache.InvalidatePrefix(statsKey)
	h.logger.Info("Sync started via API", "remote", r.RemoteAddr)
	respond.WriteSyncStarted(w, "/api/v1/sync")
}

func (h *Handler) syncFinished(stats *syncer.Stats, err error) {
	h.cache.InvalidatePrefix(listingKeyPrefix)
	if h.onSyncDone != nil {
		h.onSyncDone(stats, err)
	}
}

// VerifyListing re-fetches and upserts one place.
// @Summary Verify one place
// @Tags sync
// @Produce json
// @Param placeID path string true "Google place_id"
// @Success 200 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /api/v1/verify/{placeID} [post]
func (h *Handler) VerifyListing(w http.ResponseWriter, r *http.Request) {
	placeID := strings.TrimSpace(chi.URLParam(r, "placeID"))
	if placeID == "" {
		respond.WriteError(w, http.StatusBadRequest, "MISSING_PLACE_ID", "place id is required")
		return
	}

	if !h.cfg.HasAPIKey() {
		respond.WriteError(w, http.StatusServiceUnavailable, "API_KEY_MISSING", "GOOGLE_API_KEY is not configured")
		return
	}

	result := h.engine.VerifyRestaurant(r.Context(), placeID)
	if result.Success {
		h.cache.InvalidatePrefix(listingKeyPrefix)
	}
	respond.WriteVerifyResult(w, result)
}
