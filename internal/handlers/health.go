package handlers

import "net/http"

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"engine":    h.engine().Name(),
		"terminals": h.Terminals.Count(),
	})
}
