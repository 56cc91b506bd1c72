package config

type SecurityConfig interface {
	GetEnableRateLimiting() bool
	GetRateLimitRPS() int
	GetRateLimitBurst() int
	GetTrustProxy() bool
	GetRefreshSerialization() bool
	GetMetricsEnabled() bool
}

type Security struct {
	rateLimiting         bool
	rateLimitRPS         int
	rateLimitBurst       int
	trustProxy           bool
	refreshSerialization bool
	metricsEnabled       bool
}

var _ SecurityConfig = Security{}

func newSecurity() Security {
	return Security{
		rateLimiting:         GetBoolEnv("RATE_LIMIT_ENABLED", false),
		rateLimitRPS:         GetIntEnv("RATE_LIMIT_RPS", 5),
		rateLimitBurst:       GetIntEnv("RATE_LIMIT_BURST", 20),
		trustProxy:           GetBoolEnv("TRUST_PROXY", false),
		refreshSerialization: GetBoolEnv("REFRESH_SERIALIZATION", true),
		metricsEnabled:       GetBoolEnv("METRICS_ENABLED", false),
	}
}

// GetEnableRateLimiting applies only to the /login and /callback routes.
func (s Security) GetEnableRateLimiting() bool {
	return s.rateLimiting
}

func (s Security) GetRateLimitRPS() int {
	return s.rateLimitRPS
}

func (s Security) GetRateLimitBurst() int {
	return s.rateLimitBurst
}

// GetTrustProxy makes the rate limiter key on X-Forwarded-For instead of the peer address.
func (s Security) GetTrustProxy() bool {
	return s.trustProxy
}

// GetRefreshSerialization collapses concurrent refreshes of one session into a single grant.
func (s Security) GetRefreshSerialization() bool {
	return s.refreshSerialization
}

func (s Security) GetMetricsEnabled() bool {
	return s.metricsEnabled
}
