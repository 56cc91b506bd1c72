package config

import "time"

type Config interface {
	EnvConfig
	CorsConfig
	OAuthConfig
	SessionConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	IsDev() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type OAuthConfig interface {
	GetServerURL() string
	GetIssuerDiscovery() bool
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetScopes() []string
	GetFrontendURL() string
	GetHTTPTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	Cors
	OAuth
	Session
	Security
}

// New reads the environment once and returns an immutable snapshot.
// Later changes to the process environment are not observed.
func New() Config {
	oauth := newOAuth()
	return mainConfig{
		EnvVars:  newEnvVars(),
		Cors:     newCors(oauth.GetFrontendURL()),
		OAuth:    oauth,
		Session:  newSession(),
		Security: newSecurity(),
	}
}
