package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggoodman/mcp-toolhost-go/sessions/redishost"
	"github.com/ggoodman/mcp-toolhost-go/ssehttp"
	"github.com/ggoodman/mcp-toolhost-go/stdio"
)

const shutdownTimeout = 10 * time.Second

func newStdioCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Serve newline-delimited JSON-RPC on stdin and stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStdio(cmd.Context(), cfg)
		},
	}
}

func newSSECmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sse",
		Short: "Serve MCP over HTTP with server-sent events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSSE(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	return cmd
}

func runStdio(ctx context.Context, cfg *Config) error {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	tp, flush, err := setupTracing(ctx)
	if err != nil {
		return err
	}
	defer flushTraces(log, flush)

	srv, err := buildServer(ctx, cfg, log)
	if err != nil {
		return err
	}

	h := stdio.NewHandler(srv, stdio.WithLogger(log), stdio.WithTracerProvider(tp))
	if err := h.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorContext(ctx, "toolhost.stdio.fail", slog.String("err", err.Error()))
		return err
	}
	return nil
}

func runSSE(ctx context.Context, cfg *Config) error {
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	tp, flush, err := setupTracing(ctx)
	if err != nil {
		return err
	}
	defer flushTraces(log, flush)

	srv, err := buildServer(ctx, cfg, log)
	if err != nil {
		return err
	}

	opts := []ssehttp.Option{ssehttp.WithLogger(log), ssehttp.WithTracerProvider(tp)}
	if cfg.Redis {
		dir, err := redishost.NewFromEnv()
		if err != nil {
			return fmt.Errorf("redis sessions: %w", err)
		}
		defer func() {
			if err := dir.Shutdown(); err != nil {
				log.WarnContext(ctx, "toolhost.redis.shutdown_fail", slog.String("err", err.Error()))
			}
		}()
		opts = append(opts, ssehttp.WithDirectory(dir))
	}

	hs := &http.Server{
		Addr:              cfg.Addr,
		Handler:           ssehttp.New(srv, opts...),
		ReadHeaderTimeout: 10 * time.Second,
		// Open streams end when the process context does.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoContext(ctx, "toolhost.sse.listen", slog.String("addr", cfg.Addr))
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.InfoContext(ctx, "toolhost.sse.stopped")
	return nil
}

func flushTraces(log *slog.Logger, flush func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := flush(ctx); err != nil {
		log.WarnContext(ctx, "toolhost.tracing.flush_fail", slog.String("err", err.Error()))
	}
}
