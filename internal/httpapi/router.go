// Package httpapi exposes a small read-only HTTP surface over the Session
// Manager: one status endpoint per gateway, following the teacher's gateway
// API's router/middleware/writeJSON shape.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sensemesh/gatewayclient/internal/gatewaysession"
)

// Response is the standard response envelope for every route below.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatusPayload is the per-gateway snapshot returned by GET /status/{gatewayId}.
type StatusPayload struct {
	GatewayID string                      `json:"gatewayId"`
	State     string                      `json:"state"`
	Stats     gatewaysession.SessionStats `json:"stats"`
	LastError string                      `json:"lastError,omitempty"`
}

// NewRouter builds the read-only status API described in SPEC_FULL.md §11.
func NewRouter(mgr *gatewaysession.Manager) http.Handler {
	r := mux.NewRouter()
	r.Use(loggingMiddleware)
	r.Use(contentTypeMiddleware)

	r.HandleFunc("/status/{gatewayId}", handleStatus(mgr)).Methods(http.MethodGet)

	return r
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func handleStatus(mgr *gatewaysession.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gatewayID := mux.Vars(r)["gatewayId"]
		if gatewayID == "" {
			writeError(w, http.StatusBadRequest, "gatewayId is required")
			return
		}

		state, ok := mgr.State(gatewayID)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown or not-yet-connected gateway: "+gatewayID)
			return
		}

		stats, _ := mgr.Stats(gatewayID)
		payload := StatusPayload{GatewayID: gatewayID, State: state.String(), Stats: stats}
		if lastErr := mgr.LastError(gatewayID); lastErr != nil {
			payload.LastError = lastErr.Error()
		}

		writeJSON(w, http.StatusOK, Response{Success: true, Data: payload})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: false, Error: message})
}
