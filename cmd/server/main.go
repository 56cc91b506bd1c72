package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/authserver"
	"github.com/jrsteele09/go-auth-client/instrumentation"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/security"
	"github.com/jrsteele09/go-auth-client/server"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v\n%s", r, debug.Stack())
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	setupLogging(c)
	displayAppname(c.GetAppName())

	clientConfig, err := auth.NewClientConfig(c)
	if err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: clientConfig.HTTPTimeout}
	authServer, err := newAuthServerClient(clientConfig, httpClient)
	if err != nil {
		return err
	}

	keys, err := sessions.DeriveKeys(c.GetSessionSecret())
	if err != nil {
		return fmt.Errorf("session secret: %w", err)
	}
	cookies, err := sessions.NewCookieCodec(keys.Cookie, c.GetSessionTTL())
	if err != nil {
		return err
	}
	store, closeStore, err := newSessionStore(c, keys)
	if err != nil {
		return err
	}
	defer closeStore()

	inst, err := instrumentation.New(instrumentation.Config{Enabled: c.GetMetricsEnabled()})
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = inst.Shutdown(ctx)
	}()

	var rateLimiter *security.RateLimiter
	if c.GetEnableRateLimiting() {
		rateLimiter = security.NewRateLimiter(c.GetRateLimitRPS(), c.GetRateLimitBurst(), security.DefaultMaxEntries)
		defer rateLimiter.Stop()
	}

	authService, err := auth.NewService(store, authServer,
		auth.WithMetrics(inst.Metrics()),
		auth.WithRefreshSerialization(c.GetRefreshSerialization()),
	)
	if err != nil {
		return err
	}

	handler, err := server.New(c, server.Dependencies{
		Auth:            authService,
		Sessions:        store,
		Cookies:         cookies,
		Instrumentation: inst,
		RateLimiter:     rateLimiter,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("client_id", clientConfig.ClientID).
		Str("redirect_uri", clientConfig.RedirectURI).
		Str("oauth_server", clientConfig.ServerURL).
		Str("session_store", c.GetSessionStore()).
		Msg("OAuth client configured")

	srv := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- listenAndServe(srv)
	}()

	select {
	case err := <-errCh:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(srv)
}

func newAuthServerClient(cc auth.ClientConfig, httpClient *http.Client) (*authserver.Client, error) {
	endpoints := authserver.DefaultEndpoints(cc.ServerURL)
	if cc.Discovery {
		ctx, cancel := context.WithTimeout(context.Background(), cc.HTTPTimeout)
		defer cancel()
		discovered, err := authserver.DiscoverEndpoints(ctx, cc.ServerURL, httpClient)
		if err != nil {
			return nil, err
		}
		endpoints = discovered
	}
	return authserver.NewClient(authserver.Config{
		ClientID:     cc.ClientID,
		ClientSecret: cc.ClientSecret,
		RedirectURI:  cc.RedirectURI,
		Scopes:       cc.Scopes,
		Endpoints:    endpoints,
	}, authserver.WithHTTPClient(httpClient))
}

func newSessionStore(c config.Config, keys sessions.Keys) (sessions.Store, func(), error) {
	switch c.GetSessionStore() {
	case config.StoreMemory:
		store := sessions.NewInMemoryStore(c.GetSessionTTL())
		return store, store.Stop, nil
	case config.StoreValkey:
		var sealer sessions.Sealer
		if c.GetSessionEncryption() {
			s, err := sessions.NewJWESealer(keys.Sealing)
			if err != nil {
				return nil, nil, err
			}
			sealer = s
		}
		store, err := sessions.NewValkeyStore(sessions.ValkeyConfig{
			Address:  c.GetValkeyAddr(),
			Password: c.GetValkeyPassword(),
			DB:       c.GetValkeyDB(),
			TTL:      c.GetSessionTTL(),
			Sealer:   sealer,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session store %q", c.GetSessionStore())
	}
}

func setupLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Msgf("Server listening on %s", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
