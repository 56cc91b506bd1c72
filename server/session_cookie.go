package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/rs/zerolog/log"
)

// sessionCookieName carries the signed session id. Tokens never leave the server.
const sessionCookieName = "sid"

// sessionID returns the verified session id from the request cookie, or "" when the
// cookie is missing, tampered with or expired.
func (s *Server) sessionID(r *http.Request) string {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	id, err := s.cookies.Decode(cookie.Value)
	if err != nil {
		log.Debug().Err(err).Msg("Ignoring session cookie")
		return ""
	}
	return id
}

// ensureSession returns the request's live session id, creating a session and
// setting its cookie when there is none.
func (s *Server) ensureSession(w http.ResponseWriter, r *http.Request) (string, error) {
	if id := s.sessionID(r); id != "" {
		_, err := s.sessions.Get(r.Context(), id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, errors.ErrSessionNotFound) {
			return "", err
		}
	}

	session, err := s.sessions.Create(r.Context())
	if err != nil {
		return "", err
	}
	if err := s.setSessionCookie(w, session.ID); err != nil {
		return "", err
	}
	return session.ID, nil
}

func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string) error {
	value, err := s.cookies.Encode(sessionID)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.cookies.TTL().Seconds()),
		HttpOnly: true,
		Secure:   !s.config.IsDev(), // Only secure outside development
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !s.config.IsDev(),
		SameSite: http.SameSiteLaxMode,
	})
}
