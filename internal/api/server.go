package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/intermernet/scoreboard/internal/config"
	"github.com/intermernet/scoreboard/internal/database"
	"github.com/intermernet/scoreboard/internal/realtime"
)

// maxBodyBytes caps every JSON request body.
const maxBodyBytes = 1 << 20

// Server is the main struct for the API. It holds all dependencies required
// by the HTTP handlers, such as the application configuration and the database service.
type Server struct {
	config *config.Config
	db     *database.Service
	broker *realtime.Broker
	log    *logrus.Logger
}

// NewServer is a constructor function that creates and returns a new instance of the Server.
func NewServer(cfg *config.Config, db *database.Service, broker *realtime.Broker, logger *logrus.Logger) *Server {
	return &Server{
		config: cfg,
		db:     db,
		broker: broker,
		log:    logger,
	}
}

// envelope is a custom map type used for creating structured JSON responses,
// e.g. `envelope{"msg": "API running"}`.
type envelope map[string]interface{}

// writeJSON marshals data and sends it with the given status code and optional headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}, headers ...http.Header) {
	js, err := json.Marshal(data)
	if err != nil {
		s.log.WithError(err).Error("failed to marshal JSON response")
		http.Error(w, "Internal Server Error: Failed to marshal JSON", http.StatusInternalServerError)
		return
	}

	if len(headers) > 0 {
		for key, value := range headers[0] {
			w.Header()[key] = value
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)
}

// errorJSON sends a `{"error": "message"}` response. The status defaults to 500.
func (s *Server) errorJSON(w http.ResponseWriter, err error, status ...int) {
	statusCode := http.StatusInternalServerError
	if len(status) > 0 {
		statusCode = status[0]
	}
	s.writeJSON(w, statusCode, envelope{"error": err.Error()})
}

// serverError logs the real cause and sends a generic 500 to the client.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.log.WithFields(logrus.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
	}).WithError(err).Error("request failed")
	s.errorJSON(w, errors.New("internal server error"))
}

// readJSON decodes a single JSON object from the request body into dst.
// Unknown fields, trailing data and oversized bodies are rejected.
func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxErr *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxErr):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxErr.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &typeErr):
			if typeErr.Field != "" {
				return fmt.Errorf("body contains an invalid value for field %q", typeErr.Field)
			}
			return errors.New("body must be a JSON object")
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			field := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown field %s", field)
		case errors.As(err, &maxErr):
			return fmt.Errorf("body must not be larger than %d bytes", maxErr.Limit)
		default:
			return fmt.Errorf("could not decode JSON: %w", err)
		}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON object")
	}
	return nil
}
