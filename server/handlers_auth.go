package server

import (
	"net/http"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/oauthmodel"
	"github.com/rs/zerolog/log"
)

// LoginHandler starts the authorization code flow and redirects to the authorization server.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, err := s.ensureSession(w, r)
		if err != nil {
			log.Err(err).Msg("Failed to establish session for login")
			http.Redirect(w, r, s.frontendRedirect(oauthmodel.ReasonServerError), http.StatusFound)
			return
		}

		authorizeURL, err := s.auth.BeginAuthorization(r.Context(), sessionID)
		if err != nil {
			log.Err(err).Msg("Failed to begin authorization")
			http.Redirect(w, r, s.frontendRedirect(oauthmodel.ReasonServerError), http.StatusFound)
			return
		}
		http.Redirect(w, r, authorizeURL, http.StatusFound)
	}
}

// CallbackHandler receives the authorization server's redirect and always sends the
// browser on to the frontend, with ?error=<reason> when the flow failed.
func (s *Server) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		params := auth.CallbackParams{
			Code:  query.Get("code"),
			State: query.Get("state"),
			Error: query.Get("error"),
		}

		err := s.auth.CompleteAuthorization(r.Context(), s.sessionID(r), params)
		if err == nil {
			http.Redirect(w, r, s.frontendRedirect(""), http.StatusFound)
			return
		}

		reason := oauthmodel.ReasonServerError
		var flowErr *auth.FlowError
		if errors.As(err, &flowErr) {
			reason = flowErr.Reason
		}
		http.Redirect(w, r, s.frontendRedirect(reason), http.StatusFound)
	}
}

// frontendRedirect builds the frontend URL, merging the error reason into any existing query.
func (s *Server) frontendRedirect(reason string) string {
	if reason == "" {
		return s.frontendURL.String()
	}
	u := *s.frontendURL
	q := u.Query()
	q.Set("error", reason)
	u.RawQuery = q.Encode()
	return u.String()
}
