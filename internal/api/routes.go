package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RegisterRoutes sets up all the API endpoints and middleware for the application.
func (s *Server) RegisterRoutes(r *chi.Mux) {
	// --- Global Middleware (Applied to ALL routes) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CorsAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.errorJSON(w, errors.New("not found"), http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.errorJSON(w, errors.New("method not allowed"), http.StatusMethodNotAllowed)
	})

	r.Get("/", s.handleHome)
	r.Get("/healthz", s.handleHealth)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegisterUser)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/login", s.handleLoginUser)
			r.Get("/token", s.handleIssueToken)
		})
	})

	// GET/POST take {key} as a category, PUT/DELETE as a numeric id.
	r.Route("/sections", func(r chi.Router) {
		r.Get("/{key}", s.handleListSections)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Use(s.requireAdmin)
			r.Post("/{key}", s.handleCreateSection)
			r.Put("/{key}", s.handleUpdateSection)
			r.Delete("/{key}", s.handleDeleteSection)
		})
	})

	r.Get("/scores", s.handleListScores)
	r.Get("/scores/", s.handleListScores)
	r.Get("/scores/stream", s.handleScoreStream)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{"msg": "API running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.Ping(ctx); err != nil {
		s.log.WithError(err).Warn("health check failed")
		s.errorJSON(w, errors.New("database unavailable"), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"status": "ok"})
}
