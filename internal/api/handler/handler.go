// Package handler provides HTTP handlers for the operator API.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ekaty/ekaty-agent/internal/api/respond"
	"github.com/ekaty/ekaty-agent/internal/cache"
	"github.com/ekaty/ekaty-agent/internal/config"
	"github.com/ekaty/ekaty-agent/internal/store"
	"github.com/ekaty/ekaty-agent/internal/syncer"
)

// Syncer is the engine surface the API drives.
type Syncer interface {
	Start(ctx context.Context, done func(*syncer.Stats, error)) error
	Phase() syncer.Phase
	LastRun() *syncer.Stats
	Stats(ctx context.Context) (*syncer.Stats, error)
	VerifyRestaurant(ctx context.Context, placeID string) syncer.VerifyResult
}

// Deps are the handler's collaborators.
type Deps struct {
	Store  store.Store
	Engine Syncer
	Cache  *cache.Cache
	Config *config.Config
	Logger *slog.Logger

	// OnSyncDone runs after every background sync started over HTTP.
	OnSyncDone func(*syncer.Stats, error)

	// BaseContext bounds background syncs started over HTTP. Defaults to
	// context.Background.
	BaseContext context.Context
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	store      store.Store
	engine     Syncer
	cache      *cache.Cache
	cfg        *config.Config
	logger     *slog.Logger
	baseCtx    context.Context
	onSyncDone func(*syncer.Stats, error)
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Cache == nil {
		d.Cache = cache.New(false)
	}
	if d.BaseContext == nil {
		d.BaseContext = context.Background()
	}
	return &Handler{
		store:      d.Store,
		engine:     d.Engine,
		cache:      d.Cache,
		cfg:        d.Config,
		logger:     d.Logger.With("component", "api"),
		baseCtx:    d.BaseContext,
		onSyncDone: d.OnSyncDone,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"name":    "eKaty Restaurant Agent",
		"version": "1.0.0",
		"status":  "running",
		"phase":   h.engine.Phase().String(),
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
