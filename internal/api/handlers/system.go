package handlers

import (
	"errors"
	"net/http"

	"github.com/mkalwtb/magicnorthseaweed/internal/cache"
	"github.com/mkalwtb/magicnorthseaweed/internal/stormglass"
	"github.com/mkalwtb/magicnorthseaweed/pkg/logger"
)

// SystemHandler serves the operational endpoints: cache state, forced
// refresh and upstream quota usage.
type SystemHandler struct {
	cache   *cache.Cache
	keyring *stormglass.Keyring
	logger  *logger.Logger
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(c *cache.Cache, keyring *stormglass.Keyring, log *logger.Logger) *SystemHandler {
	return &SystemHandler{
		cache:   c,
		keyring: keyring,
		logger:  log,
	}
}

// CacheStatus reports the cache's freshness without triggering a refresh.
// GET /api/cache/status
func (h *SystemHandler) CacheStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.cache.Info())
}

// Refresh forces a synchronous payload replacement.
// POST /api/refresh
func (h *SystemHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.ForceRefresh(r.Context()); err != nil {
		h.logger.WithError(err).Error("Forced refresh failed")
		if errors.Is(err, stormglass.ErrQuotaExhausted) {
			respondError(w, http.StatusServiceUnavailable, "Upstream quota exhausted for today")
			return
		}
		respondError(w, http.StatusInternalServerError, "Refresh failed")
		return
	}

	respondJSON(w, http.StatusOK, h.cache.Info())
}

// Usage reports per-credential upstream consumption.
// GET /api/usage
func (h *SystemHandler) Usage(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.keyring.Summary())
}
