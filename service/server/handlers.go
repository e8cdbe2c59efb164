package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// handleHealth returns a liveness handler.
// GET /health
func handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

// handleStatus returns a handler that reports the ingestion loop snapshot.
// GET /api/v1/status
// Responds 503 until startup has completed, with the snapshot in the body.
func handleStatus(status StatusProvider, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status == nil {
			writeError(w, "status not available", http.StatusServiceUnavailable)
			return
		}

		snapshot := status.Status()
		code := http.StatusOK
		if !snapshot.Ready {
			logger.Debug("status requested before startup completed")
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, snapshot, code)
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}
