// Package server exposes the webhook and health endpoints.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/accountsync/internal/recap"
)

// Server routes inbound webhook traffic to the recap ingestion service.
type Server struct {
	ingest *recap.Service
}

func New(ingest *recap.Service) *Server {
	return &Server{ingest: ingest}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Post("/recaps", s.handleRecap)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRecap accepts the meeting recap webhook. A duplicate delivery is a
// success with action "skipped"; only malformed JSON (400) and store failures
// (500) are errors.
func (s *Server) handleRecap(w http.ResponseWriter, r *http.Request) {
	if t := r.URL.Query().Get("type"); t != "" && t != "meeting_recap" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "unsupported webhook type: " + t,
		})
		return
	}

	var payload recap.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}

	result, err := s.ingest.Ingest(r.Context(), payload)
	if err != nil {
		zap.L().Error("server: recap ingestion failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "ingestion failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"action":         result.Action,
		"meetingRecapId": result.RecapID,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("server: write response", zap.Error(err))
	}
}
