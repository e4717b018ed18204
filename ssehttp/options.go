package ssehttp

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ggoodman/mcp-toolhost-go/internal/engine"
	"github.com/ggoodman/mcp-toolhost-go/sessions"
)

// DefaultKeepAlive is the interval between keep-alive comments on open streams.
const DefaultKeepAlive = 15 * time.Second

// Option configures the Handler.
type Option func(*Handler)

// WithLogger sets the logger used by the handler. If not provided, logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithDirectory sets the session directory. The default is an in-memory
// directory with the default per-session capacity.
func WithDirectory(dir sessions.Directory) Option {
	return func(h *Handler) {
		if dir != nil {
			h.dir = dir
		}
	}
}

// WithSSEPath overrides the stream route. Default "/sse".
func WithSSEPath(p string) Option {
	return func(h *Handler) {
		if p != "" {
			h.ssePath = p
		}
	}
}

// WithMessagePath overrides the submit route. Default "/message". The
// endpoint announced on new streams follows this path.
func WithMessagePath(p string) Option {
	return func(h *Handler) {
		if p != "" {
			h.messagePath = p
		}
	}
}

// WithKeepAlive sets the keep-alive interval. Zero disables keep-alives.
func WithKeepAlive(d time.Duration) Option {
	return func(h *Handler) {
		if d >= 0 {
			h.keepAlive = d
		}
	}
}

// WithTracerProvider sets the tracer provider used for dispatch spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Handler) { h.engineOpts = append(h.engineOpts, engine.WithTracerProvider(tp)) }
}

// WithMeterProvider sets the meter provider used for dispatch metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(h *Handler) { h.engineOpts = append(h.engineOpts, engine.WithMeterProvider(mp)) }
}
