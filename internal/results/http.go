package results

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HTTPHandler exposes the REST side of the results service. Identity comes
// from the X-User-Id header; the actual session check lives at the edge
// proxy, same as for the WebSocket upgrade.
type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

// Register mounts the results routes on mux.
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/results", h.handleResults)
	mux.HandleFunc("/api/stats", h.handleStats)
}

// submitRequest is the body of POST /api/results.
type submitRequest struct {
	WPM         int     `json:"wpm"`
	Accuracy    int     `json:"accuracy"`
	Errors      int     `json:"errors"`
	TimeElapsed float64 `json:"timeElapsed"`
	TestType    string  `json:"testType"`
}

func (r *submitRequest) validate() string {
	switch {
	case r.WPM < 0 || r.WPM > 500:
		return "wpm must be between 0 and 500"
	case r.Accuracy < 0 || r.Accuracy > 100:
		return "accuracy must be between 0 and 100"
	case r.Errors < 0:
		return "errors must not be negative"
	case r.TimeElapsed < 1:
		return "timeElapsed must be at least 1 second"
	}
	if r.TestType != TestTypePractice && r.TestType != TestTypeMultiplayer {
		return "testType must be practice or multiplayer"
	}
	return ""
}

func (h *HTTPHandler) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	result := TestResult{
		UserID:      userID,
		WPM:         req.WPM,
		Accuracy:    req.Accuracy,
		Errors:      req.Errors,
		TimeElapsed: req.TimeElapsed,
		TestType:    req.TestType,
	}
	if err := h.svc.RecordTest(r.Context(), result); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to record test result")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *HTTPHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, recent, err := h.svc.Stats(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("failed to load user stats")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if recent == nil {
		recent = []TestResult{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":       stats,
		"recentTests": recent,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
