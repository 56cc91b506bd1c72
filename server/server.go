package server

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/instrumentation"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/security"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/rs/zerolog/log"
)

// Dependencies are the collaborators the HTTP surface is built on.
type Dependencies struct {
	Auth            *auth.Service
	Sessions        sessions.Store
	Cookies         *sessions.CookieCodec
	Instrumentation *instrumentation.Instrumentation
	RateLimiter     *security.RateLimiter // nil disables rate limiting
}

type Server struct {
	env             string
	mux             *http.ServeMux
	routes          []string
	config          config.Config
	auth            *auth.Service
	sessions        sessions.Store
	cookies         *sessions.CookieCodec
	instrumentation *instrumentation.Instrumentation
	rateLimiter     *security.RateLimiter
	frontendURL     *url.URL
}

func New(c config.Config, deps Dependencies) (*Server, error) {
	if deps.Auth == nil || deps.Sessions == nil || deps.Cookies == nil {
		return nil, fmt.Errorf("[Server New] auth service, session store and cookie codec are required")
	}
	frontendURL, err := url.Parse(c.GetFrontendURL())
	if err != nil || frontendURL.Scheme == "" || frontendURL.Host == "" {
		return nil, fmt.Errorf("[Server New] invalid frontend url %q", c.GetFrontendURL())
	}

	s := &Server{
		env:             c.GetEnv(),
		mux:             http.NewServeMux(),
		config:          c,
		auth:            deps.Auth,
		sessions:        deps.Sessions,
		cookies:         deps.Cookies,
		instrumentation: deps.Instrumentation,
		rateLimiter:     deps.RateLimiter,
		frontendURL:     frontendURL,
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

// Routes lists the registered patterns in registration order.
func (s *Server) Routes() []string {
	return append([]string(nil), s.routes...)
}

func (s *Server) metrics() *instrumentation.Metrics {
	if s.instrumentation == nil {
		return nil
	}
	return s.instrumentation.Metrics()
}

func (s *Server) logRoutes() {
	if !s.config.IsDev() {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	log.Info().Msgf("[%-19s] %s", colourMethod(method), path)
}

func colourMethod(method string) string {
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		return color + paddedMethod + ResetColor
	}
	return Gray + paddedMethod + ResetColor
}
