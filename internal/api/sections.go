package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/intermernet/scoreboard/internal/database"
	"github.com/intermernet/scoreboard/internal/realtime"
)

// sectionIDParam parses the {key} segment as a section id.
func sectionIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "key"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid section ID")
	}
	return id, nil
}

// handleListSections returns all sections of a category, oldest first.
func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(chi.URLParam(r, "key"))

	sections, err := s.db.ListSectionsByCategory(r.Context(), s.db.DB(), category)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toSectionResponseList(sections))
}

// handleCreateSection creates a section in the category named by the path.
func (s *Server) handleCreateSection(w http.ResponseWriter, r *http.Request) {
	var payload sectionPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	sec, err := payload.toSection(chi.URLParam(r, "key"))
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	var created *database.Section
	err = s.db.WriteTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		created, err = s.db.CreateSection(r.Context(), tx, sec)
		return err
	})
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	resp := toSectionResponse(created)
	if created.Finished {
		s.broker.Publish(realtime.Message{Type: realtime.SectionFinished, Payload: resp})
	}
	s.writeJSON(w, http.StatusCreated, resp)
}

// handleUpdateSection applies a partial update. Nothing is written when the
// body fails validation, including an unparsable date.
func (s *Server) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	id, err := sectionIDParam(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	var payload sectionPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}
	changes, err := payload.toChanges()
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	var before, after *database.Section
	err = s.db.WriteTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		if before, err = s.db.GetSectionByID(r.Context(), tx, id); err != nil {
			return err
		}
		after, err = s.db.UpdateSection(r.Context(), tx, id, changes)
		return err
	})
	if errors.Is(err, database.ErrNotFound) {
		s.errorJSON(w, errors.New("section not found"), http.StatusNotFound)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	resp := toSectionResponse(after)
	switch {
	case after.Finished && !before.Finished:
		s.broker.Publish(realtime.Message{Type: realtime.SectionFinished, Payload: resp})
	case after.Finished || before.Finished:
		s.broker.Publish(realtime.Message{Type: realtime.SectionUpdated, Payload: resp})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleDeleteSection removes a section and answers 204 with no body.
func (s *Server) handleDeleteSection(w http.ResponseWriter, r *http.Request) {
	id, err := sectionIDParam(r)
	if err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	var deleted *database.Section
	err = s.db.WriteTx(r.Context(), func(tx *sql.Tx) error {
		var err error
		if deleted, err = s.db.GetSectionByID(r.Context(), tx, id); err != nil {
			return err
		}
		return s.db.DeleteSection(r.Context(), tx, id)
	})
	if errors.Is(err, database.ErrNotFound) {
		s.errorJSON(w, errors.New("section not found"), http.StatusNotFound)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	if deleted.Finished {
		s.broker.Publish(realtime.Message{Type: realtime.SectionDeleted, Payload: envelope{"id": id}})
	}
	w.WriteHeader(http.StatusNoContent)
}
