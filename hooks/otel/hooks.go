// Package otelhooks counts cache events with OpenTelemetry metrics.
//
// Raw keys are never used as attributes; only the low-cardinality op and
// reason values are recorded.
package otelhooks

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/appcache"
)

const instrumentationName = "github.com/unkn0wn-root/appcache/hooks/otel"

type config struct {
	provider metric.MeterProvider
	attrs    []attribute.KeyValue
}

// Option configures Hooks.
type Option func(*config)

// WithMeterProvider sets the MeterProvider. Defaults to otel.GetMeterProvider().
func WithMeterProvider(p metric.MeterProvider) Option {
	return func(c *config) { c.provider = p }
}

// WithAttributes adds attributes to every measurement, e.g. the cache prefix.
func WithAttributes(attrs ...attribute.KeyValue) Option {
	return func(c *config) { c.attrs = append(c.attrs, attrs...) }
}

type Hooks struct {
	unresolved metric.Int64Counter
	corrupt    metric.Int64Counter
	rejected   metric.Int64Counter
	errors     metric.Int64Counter
	attrs      []attribute.KeyValue
}

var _ appcache.Hooks = (*Hooks)(nil)

func New(opts ...Option) (*Hooks, error) {
	cfg := &config{provider: otel.GetMeterProvider()}
	for _, opt := range opts {
		opt(cfg)
	}

	meter := cfg.provider.Meter(instrumentationName)
	h := &Hooks{attrs: cfg.attrs}
	var err error
	if h.unresolved, err = meter.Int64Counter(
		"appcache.namespace.unresolved",
		metric.WithDescription("Operations skipped because their namespace key had no value"),
	); err != nil {
		return nil, err
	}
	if h.corrupt, err = meter.Int64Counter(
		"appcache.entries.corrupt",
		metric.WithDescription("Stored values that could not be decompressed or decoded"),
	); err != nil {
		return nil, err
	}
	if h.rejected, err = meter.Int64Counter(
		"appcache.provider.rejected",
		metric.WithDescription("Writes dropped by the provider under pressure"),
	); err != nil {
		return nil, err
	}
	if h.errors, err = meter.Int64Counter(
		"appcache.provider.errors",
		metric.WithDescription("Failed provider operations"),
	); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Hooks) add(c metric.Int64Counter, attrs ...attribute.KeyValue) {
	attrs = append(attrs, h.attrs...)
	c.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func (h *Hooks) NamespaceUnresolved(op, _ string) {
	h.add(h.unresolved, attribute.String("appcache.operation", op))
}

func (h *Hooks) CorruptEntry(_ string, reason string) {
	h.add(h.corrupt, attribute.String("appcache.reason", reason))
}

func (h *Hooks) ProviderSetRejected(string) {
	h.add(h.rejected)
}

func (h *Hooks) ProviderError(op, _ string, _ error) {
	h.add(h.errors, attribute.String("appcache.operation", op))
}
