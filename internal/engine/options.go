package engine

import (
	"github.com/geomarker/anchor/pkg/core"
	"go.opentelemetry.io/otel/metric"
)

// Logger interface for pluggable logging. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Notifier receives informational notices meant for the UI layer.
type Notifier func(core.Notice)

// Option configures an Engine.
type Option func(*options)

type options struct {
	threshold float64
	logger    Logger
	notifier  Notifier
	meter     metric.Meter
}

// WithThreshold sets the hysteresis threshold in meters.
func WithThreshold(meters float64) Option {
	return func(o *options) {
		o.threshold = meters
	}
}

// WithLogger routes engine diagnostics to l.
func WithLogger(l Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithNotifier delivers notices (e.g. a detected but paused marker) to n.
func WithNotifier(n Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithMeter records engine metrics on m instead of the global meter.
func WithMeter(m metric.Meter) Option {
	return func(o *options) {
		o.meter = m
	}
}
