package server

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

const (
	msgNotAuthenticated = "Not authenticated"
	msgSessionExpired   = "Session expired. Please login again."
	msgFetchFailed      = "Failed to fetch user info"
)

// MeHandler returns the identity behind the session, refreshing the access token when needed.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := s.sessionID(r)
		if sessionID == "" {
			writeJSONError(w, http.StatusUnauthorized, msgNotAuthenticated)
			return
		}

		identity, err := s.auth.ResolveIdentity(r.Context(), sessionID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, identity)
		case errors.Is(err, auth.ErrNotAuthenticated):
			writeJSONError(w, http.StatusUnauthorized, msgNotAuthenticated)
		case errors.Is(err, auth.ErrSessionExpired):
			s.clearSessionCookie(w)
			writeJSONError(w, http.StatusUnauthorized, msgSessionExpired)
		default:
			log.Err(err).Msg("Identity resolution failed")
			writeJSONError(w, http.StatusInternalServerError, msgFetchFailed)
		}
	}
}

// LogoutHandler destroys the session. It succeeds whether or not a session existed.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sessionID := s.sessionID(r); sessionID != "" {
			if err := s.auth.Logout(r.Context(), sessionID); err != nil {
				log.Err(err).Msg("Logout failed")
				writeJSONError(w, http.StatusInternalServerError, "Logout failed")
				return
			}
		}
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
