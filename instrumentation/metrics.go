package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics holds all metric instruments. A nil *Metrics records nothing.
type Metrics struct {
	// HTTP Layer Metrics
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram

	// OAuth Flow Metrics
	AuthorizationStarted metric.Int64Counter
	CallbackProcessed    metric.Int64Counter
	CodeExchanged        metric.Int64Counter
	TokenRefreshed       metric.Int64Counter
	IdentityResolved     metric.Int64Counter
	SessionsDestroyed    metric.Int64Counter

	// Security Metrics
	RateLimitExceeded metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"oauth_client.http.requests",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.requests counter: %w", err)
	}

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"oauth_client.http.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http.request.duration histogram: %w", err)
	}

	m.AuthorizationStarted, err = meter.Int64Counter(
		"oauth_client.authorization.started",
		metric.WithDescription("Number of authorization flows started"),
		metric.WithUnit("{flow}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorization.started counter: %w", err)
	}

	m.CallbackProcessed, err = meter.Int64Counter(
		"oauth_client.callback.processed",
		metric.WithDescription("Number of authorization callbacks processed"),
		metric.WithUnit("{callback}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create callback.processed counter: %w", err)
	}

	m.CodeExchanged, err = meter.Int64Counter(
		"oauth_client.code.exchanged",
		metric.WithDescription("Number of authorization code exchanges attempted"),
		metric.WithUnit("{exchange}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create code.exchanged counter: %w", err)
	}

	m.TokenRefreshed, err = meter.Int64Counter(
		"oauth_client.token.refreshed",
		metric.WithDescription("Number of refresh grants attempted"),
		metric.WithUnit("{refresh}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token.refreshed counter: %w", err)
	}

	m.IdentityResolved, err = meter.Int64Counter(
		"oauth_client.identity.resolved",
		metric.WithDescription("Number of identity lookups by final outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity.resolved counter: %w", err)
	}

	m.SessionsDestroyed, err = meter.Int64Counter(
		"oauth_client.sessions.destroyed",
		metric.WithDescription("Number of sessions destroyed"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sessions.destroyed counter: %w", err)
	}

	m.RateLimitExceeded, err = meter.Int64Counter(
		"oauth_client.rate_limit.exceeded",
		metric.WithDescription("Number of requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.exceeded counter: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with its outcome
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, durationMs float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)
	m.HTTPRequestDuration.Record(ctx, durationMs, attrs)
}

func (m *Metrics) RecordAuthorizationStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.AuthorizationStarted.Add(ctx, 1)
}

// RecordCallbackProcessed records the callback outcome; reason is empty on success.
func (m *Metrics) RecordCallbackProcessed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if reason != "" {
		result = ResultFailure
	}
	m.CallbackProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("reason", reason),
	))
}

func (m *Metrics) RecordCodeExchange(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.CodeExchanged.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultOf(success))))
}

func (m *Metrics) RecordTokenRefresh(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.TokenRefreshed.Add(ctx, 1, metric.WithAttributes(attribute.String("result", resultOf(success))))
}

// RecordIdentityResolved records the terminal state of an identity lookup.
func (m *Metrics) RecordIdentityResolved(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.IdentityResolved.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordSessionDestroyed(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.SessionsDestroyed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) RecordRateLimitExceeded(ctx context.Context, route string) {
	if m == nil {
		return
	}
	m.RateLimitExceeded.Add(ctx, 1, metric.WithAttributes(attribute.String("http.route", route)))
}

func resultOf(success bool) string {
	if success {
		return ResultSuccess
	}
	return ResultFailure
}
