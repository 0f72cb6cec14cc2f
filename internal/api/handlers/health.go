package handlers

import (
	"net/http"
	"time"

	"github.com/Von-Base-Enterprises/core-nexus/internal/domain"
	"github.com/Von-Base-Enterprises/core-nexus/internal/unified"
)

type HealthHandler struct {
	store     *unified.Store
	startTime time.Time
}

func NewHealthHandler(store *unified.Store, startTime time.Time) *HealthHandler {
	return &HealthHandler{store: store, startTime: startTime}
}

// Health reports overall service health. The status code follows the
// folded state: healthy and degraded answer 200 (the service still takes
// requests), unavailable answers 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	health := h.store.HealthCheck(r.Context())

	var total int64
	if stats, err := h.store.Primary().Stats(r.Context()); err == nil {
		total = stats.TotalVectors
	}

	status := http.StatusOK
	if health.Status == domain.Unavailable {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, map[string]any{
		"status":         health.Status,
		"components":     health.Details,
		"total_memories": total,
		"uptime_seconds": time.Since(h.startTime).Seconds(),
	})
}

// Providers lists each backend with its role, health, and stats.
func (h *HealthHandler) Providers(w http.ResponseWriter, r *http.Request) {
	infos := h.store.Providers(r.Context())

	out := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		entry := map[string]any{
			"name":    info.Name,
			"enabled": true,
			"primary": info.Primary,
			"health":  info.Health,
			"stats":   info.Stats,
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}
