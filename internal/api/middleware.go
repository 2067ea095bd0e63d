package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/intermernet/scoreboard/internal/auth"
	"github.com/intermernet/scoreboard/internal/database"
)

// contextKey is a custom type used for keys in context.Context. Using a custom
// type prevents collisions between context keys defined in different packages.
type contextKey string

// userContextKey is the key under which the authenticated user is stored.
const userContextKey = contextKey("currentUser")

var (
	errNoCredentials      = errors.New("authentication required")
	errInvalidCredentials = errors.New("invalid credentials")
)

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// equalizeTiming spends roughly the same time as a real password check so an
// unknown email cannot be told apart from a wrong password by response time.
func equalizeTiming(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = auth.HashPassword("not-a-real-password")
	})
	auth.CheckPasswordHash(password, dummyHash)
}

// requestLogger logs every request with logrus once the response is written.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"remote":     r.RemoteAddr,
		}).Info("HTTP request")
	})
}

// authenticate resolves the caller from either HTTP Basic credentials
// (email:password) or a bearer token issued by the token endpoint. The user is
// always re-read from the database so admin changes apply immediately.
func (s *Server) authenticate(r *http.Request) (*database.User, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, errNoCredentials
	}
	ctx := r.Context()

	if email, password, ok := r.BasicAuth(); ok {
		user, err := s.db.GetUserByEmail(ctx, s.db.DB(), email)
		if errors.Is(err, database.ErrNotFound) {
			equalizeTiming(password)
			return nil, errInvalidCredentials
		}
		if err != nil {
			return nil, err
		}
		if !auth.CheckPasswordHash(password, user.PasswordHash) {
			return nil, errInvalidCredentials
		}
		return user, nil
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		claims, err := auth.ValidateJWT(strings.TrimSpace(parts[1]), s.config.JwtSecret)
		if err != nil {
			return nil, errInvalidCredentials
		}
		user, err := s.db.GetUserByID(ctx, s.db.DB(), claims.UserID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		if err != nil {
			return nil, err
		}
		return user, nil
	}

	return nil, errInvalidCredentials
}

// unauthorized sends a 401 with a Basic challenge. The message never reveals
// whether the email exists.
func (s *Server) unauthorized(w http.ResponseWriter, err error) {
	headers := http.Header{}
	headers.Set("WWW-Authenticate", `Basic realm="scoreboard", charset="UTF-8"`)
	s.writeJSON(w, http.StatusUnauthorized, envelope{"error": err.Error()}, headers)
}

// authMiddleware protects routes that require a logged-in user. On success the
// user is injected into the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			if errors.Is(err, errNoCredentials) || errors.Is(err, errInvalidCredentials) {
				s.unauthorized(w, err)
				return
			}
			s.serverError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin must run after authMiddleware.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.currentUser(r)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		if !user.IsAdmin {
			s.errorJSON(w, errors.New("forbidden"), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// currentUser returns the user stored by authMiddleware.
func (s *Server) currentUser(r *http.Request) (*database.User, error) {
	user, ok := r.Context().Value(userContextKey).(*database.User)
	if !ok || user == nil {
		return nil, errors.New("could not retrieve user from context")
	}
	return user, nil
}
