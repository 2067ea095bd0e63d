package api

import (
	"errors"
	"fmt"
	"net/http"
)

// handleListScores publishes every finished section, newest first.
func (s *Server) handleListScores(w http.ResponseWriter, r *http.Request) {
	sections, err := s.db.ListFinishedSections(r.Context(), s.db.DB())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSectionResponseList(sections))
}

// handleScoreStream is the Server-Sent Events feed of score changes.
func (s *Server) handleScoreStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorJSON(w, errors.New("streaming unsupported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, messages := s.broker.Subscribe()
	defer s.broker.Unsubscribe(id)

	for {
		select {
		case message, open := <-messages:
			if !open {
				return
			}
			// SSE framing: "data: {...}\n\n"
			fmt.Fprintf(w, "data: %s\n\n", message)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
