package server

import (
	"errors"
	"net/http"

	"soundstorm/internal/apperrors"
	"soundstorm/internal/session"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

// authed resolves the session cookie and refreshes the session before calling next.
func (ms *MusicServer) authed(next sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := ms.sessions.FromRequest(r)
		if !ok {
			ms.respondWithStatus(w, r, http.StatusUnauthorized, errorResponse{Error: "authentication required"}, nil)
			return
		}
		ms.sessions.Refresh(s.Token)
		next(w, r, s)
	})
}

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleRegister creates an account. It does not sign the user in.
func (ms *MusicServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	user, err := ms.authService.Register(req.Username, req.Email, req.Password)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.respondJSON(w, http.StatusCreated, map[string]any{"user": user.Public()})
}

// handleAuthLogin handles login API requests
func (ms *MusicServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		ms.respondWithError(w, r, err)
		return
	}

	user, err := ms.authService.Login(req.Username, req.Password)
	if err != nil {
		var nerr *apperrors.NotFoundError
		if errors.As(err, &nerr) {
			ms.respondWithStatus(w, r, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"}, err)
			return
		}
		ms.respondWithError(w, r, err)
		return
	}

	s, err := ms.sessions.SignIn(user)
	if err != nil {
		ms.respondWithError(w, r, err)
		return
	}
	ms.sessions.SetCookie(w, s)

	ms.respondJSON(w, http.StatusOK, map[string]any{"user": s.User})
}

// handleAuthLogout ends the session named by the cookie, if any, and clears the cookie.
func (ms *MusicServer) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if s, ok := ms.sessions.FromRequest(r); ok {
		ms.sessions.SignOut(s.Token)
	}
	ms.sessions.ClearCookie(w)

	ms.respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}
