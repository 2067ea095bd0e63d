package api

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/intermernet/scoreboard/internal/auth"
	"github.com/intermernet/scoreboard/internal/database"
)

const minPasswordLen = 6

// registerUserPayload defines the structure of the JSON body expected for user registration.
type registerUserPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	IsAdmin  *bool  `json:"is_admin"`
}

// handleRegisterUser creates a new account. Requesting is_admin=true is only
// honoured for callers authenticated as an admin, or when admin sign-up has
// been enabled in the configuration.
func (s *Server) handleRegisterUser(w http.ResponseWriter, r *http.Request) {
	var payload registerUserPayload
	if err := s.readJSON(w, r, &payload); err != nil {
		s.errorJSON(w, err, http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(payload.Email)
	if email == "" || payload.Password == "" {
		s.errorJSON(w, errors.New("email and password are required"), http.StatusBadRequest)
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		s.errorJSON(w, errors.New("email is not a valid address"), http.StatusBadRequest)
		return
	}
	if len(payload.Password) < minPasswordLen {
		s.errorJSON(w, errors.New("password must be at least 6 characters long"), http.StatusBadRequest)
		return
	}

	isAdmin := payload.IsAdmin != nil && *payload.IsAdmin
	if isAdmin && !s.config.AllowAdminSignup {
		caller, err := s.authenticate(r)
		if err != nil && !errors.Is(err, errNoCredentials) && !errors.Is(err, errInvalidCredentials) {
			s.serverError(w, r, err)
			return
		}
		if caller == nil || !caller.IsAdmin {
			s.errorJSON(w, errors.New("only an admin can create admin accounts"), http.StatusForbidden)
			return
		}
	}

	hashedPassword, err := auth.HashPassword(payload.Password)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	user, err := s.db.CreateUser(r.Context(), s.db.DB(), email, hashedPassword, isAdmin)
	if errors.Is(err, database.ErrDuplicateEmail) {
		s.errorJSON(w, errors.New("a user with this email address already exists"), http.StatusConflict)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	s.log.WithField("user_id", user.ID).WithField("is_admin", user.IsAdmin).Info("user registered")
	s.writeJSON(w, http.StatusCreated, envelope{"msg": "registered"})
}

// handleLoginUser echoes the identity resolved by authMiddleware.
func (s *Server) handleLoginUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"email": user.Email, "is_admin": user.IsAdmin})
}

// handleIssueToken returns a bearer token usable instead of Basic credentials.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	token, expiresAt, err := auth.GenerateJWT(user.ID, s.config.JwtSecret)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"token": token, "expires_at": expiresAt.UTC()})
}
