package stdio

import (
	"io"
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ggoodman/mcp-toolhost-go/internal/engine"
)

// Option customizes a Handler.
type Option func(*Handler)

// WithIO sets the reader and writer for the handler.
func WithIO(r io.Reader, w io.Writer) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
		if w != nil {
			h.w = w
		}
	}
}

// WithReader overrides the input stream.
func WithReader(r io.Reader) Option {
	return func(h *Handler) {
		if r != nil {
			h.r = r
		}
	}
}

// WithWriter overrides the output stream.
func WithWriter(w io.Writer) Option {
	return func(h *Handler) {
		if w != nil {
			h.w = w
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.l = l
		}
	}
}

// WithQueueSize bounds the number of responses waiting to be written.
// Default 100.
func WithQueueSize(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.queueSize = n
		}
	}
}

// WithMaxReadErrors makes Serve give up after n consecutive read errors.
// The default, 0, retries indefinitely.
func WithMaxReadErrors(n int) Option {
	return func(h *Handler) {
		if n >= 0 {
			h.maxReadErrors = n
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
