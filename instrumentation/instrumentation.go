package instrumentation

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "github.com/jrsteele09/go-auth-client"

// Config holds instrumentation configuration
type Config struct {
	// Enabled controls whether metrics are collected
	// When false, uses a no-op provider and Handler answers 404
	Enabled bool

	// Reader replaces the Prometheus exporter, used by tests to collect on demand
	Reader sdkmetric.Reader
}

// Instrumentation owns the meter provider and the Prometheus registry behind /metrics.
type Instrumentation struct {
	meterProvider metric.MeterProvider
	registry      *prometheus.Registry
	metrics       *Metrics

	shutdownFuncs []func(context.Context) error
	shutdownOnce  sync.Once
}

func New(config Config) (*Instrumentation, error) {
	inst := &Instrumentation{}

	if config.Enabled {
		reader := config.Reader
		if reader == nil {
			inst.registry = prometheus.NewRegistry()
			exporter, err := otelprom.New(otelprom.WithRegisterer(inst.registry))
			if err != nil {
				return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
			}
			reader = exporter
		}
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		inst.meterProvider = provider
		inst.shutdownFuncs = append(inst.shutdownFuncs, provider.Shutdown)
	} else {
		inst.meterProvider = noop.NewMeterProvider()
	}

	var err error
	inst.metrics, err = newMetrics(inst.meterProvider.Meter(meterName))
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	return inst, nil
}

// Metrics returns the metrics holder for recording metric values
func (i *Instrumentation) Metrics() *Metrics {
	if i == nil {
		return nil
	}
	return i.metrics
}

// Handler serves the Prometheus exposition format.
func (i *Instrumentation) Handler() http.Handler {
	if i.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(i.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	var shutdownErr error
	i.shutdownOnce.Do(func() {
		for _, fn := range i.shutdownFuncs {
			if err := fn(ctx); err != nil && shutdownErr == nil {
				shutdownErr = err
			}
		}
	})
	return shutdownErr
}
