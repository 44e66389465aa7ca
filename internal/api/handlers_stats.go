package api

import (
	"net/http"
	"strconv"
)

const (
	defaultDeckListLimit = 50
	maxDeckListLimit     = 500
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"stages":      s.stats.Snapshot(),
		"queue_depth": s.orchestrator.QueueDepth(),
	})
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	if s.decks == nil {
		jsonError(w, "deck history is disabled", http.StatusServiceUnavailable)
		return
	}

	limit := defaultDeckListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxDeckListLimit)
	}

	decks, err := s.decks.ListDecks(r.Context(), limit)
	if err != nil {
		s.log.Error("list decks failed", "error", err)
		jsonError(w, "failed to list decks", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"decks": decks})
}
