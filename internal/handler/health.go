package handler

import "net/http"

// Health handles GET /health. It reports liveness only and is exempt from
// authentication.
func Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
