package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"workbridge/pkg/apierror"
)

// Check reports whether one dependency is reachable.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks map[string]Check
}

func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

func (h *HealthHandler) Live(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
}

// Ready runs every check with a short deadline and fails on the first
// unreachable dependency.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if check == nil {
			continue
		}
		if err := check(ctx); err != nil {
			slog.Warn("readiness check failed", "dependency", name, "error", err)
			writeError(w, apierror.New("NOT_READY", name+" unavailable", "", http.StatusServiceUnavailable))
			return
		}
		status[name] = "ok"
	}

	writeSuccess(w, http.StatusOK, status, nil)
}
