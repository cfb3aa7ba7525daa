package handlers

import (
	"net/http"
)

// syncStatus reports connectivity, drain state and queue depth
func (r *Router) syncStatus(w http.ResponseWriter, req *http.Request) {
	status := r.engine.Status(req.Context(), r.monitor.IsOnline())
	respondJSON(w, http.StatusOK, status)
}

// forceSync re-probes connectivity and drains the queue if the remote is
// reachable. Responds 409 when a drain is already in flight and 503 when
// the probe says the remote is down.
func (r *Router) forceSync(w http.ResponseWriter, req *http.Request) {
	result := r.monitor.ForceSync(req.Context())
	if result.Skipped {
		// ForceSync refreshed the connectivity flag from a live probe
		// before deciding, so the flag distinguishes the two causes
		if !r.monitor.IsOnline() {
			respondError(w, http.StatusServiceUnavailable, "Marketplace unreachable")
			return
		}
		respondError(w, http.StatusConflict, "Sync already in progress")
		return
	}

	respondJSON(w, http.StatusOK, result)
}
