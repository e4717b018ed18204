package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ggoodman/mcp-toolhost-go/internal/engine"
	"github.com/ggoodman/mcp-toolhost-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-toolhost-go/internal/logctx"
	"github.com/ggoodman/mcp-toolhost-go/mcpservice"
)

const defaultQueueSize = 100

// Handler is a single-connection stdio transport that reads newline-delimited
// JSON-RPC requests from an io.Reader and writes one response line per request
// to an io.Writer. By default, it uses os.Stdin and os.Stdout.
//
// The handler is transport-only; it delegates all protocol semantics to the
// engine built around the provided server.
type Handler struct {
	srv *mcpservice.Server
	r   io.Reader
	w   io.Writer
	l   *slog.Logger

	queueSize     int
	maxReadErrors int
	engineOpts    []engine.EngineOption
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(srv *mcpservice.Server, opts ...Option) *Handler {
	h := &Handler{
		srv:       srv,
		r:         os.Stdin,
		w:         os.Stdout,
		l:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		queueSize: defaultQueueSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.l = logctx.New(h.l.Handler())
	return h
}

// Serve runs the stdio event loop until EOF on the reader or the context is
// canceled. It is safe to call at most once per Handler.
//
// Records are dispatched one at a time, so responses are written in request
// order. Malformed records are answered with a parse error and never end the
// loop. Serve returns nil on EOF, ctx.Err() on cancellation, and the first
// write error if the output stream fails; responses still queued at that point
// are discarded.
func (h *Handler) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: "stdio", Transport: "stdio"})
	eng := engine.NewEngine(h.srv, append([]engine.EngineOption{engine.WithLogger(h.l)}, h.engineOpts...)...)

	out := make(chan *jsonrpc.Response, h.queueSize)
	readErr := make(chan error, 1)
	go func() {
		defer close(out)
		readErr <- h.readLoop(ctx, eng, out)
	}()

	h.l.InfoContext(ctx, "stdio.serve.start")
	if err := h.writeLoop(ctx, out); err != nil {
		h.l.ErrorContext(ctx, "stdio.serve.fail", slog.String("err", err.Error()))
		return err
	}

	// The reader may be parked in Read; it exits on its next record.
	if err := ctx.Err(); err != nil {
		h.l.InfoContext(ctx, "stdio.serve.canceled")
		return err
	}

	err := <-readErr
	h.l.InfoContext(ctx, "stdio.serve.finish")
	return err
}

func (h *Handler) readLoop(ctx context.Context, eng *engine.Engine, out chan<- *jsonrpc.Response) error {
	br := bufio.NewReader(h.r)
	readErrors := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, os.ErrClosed) {
				h.l.InfoContext(ctx, "stdio.read.closed", slog.String("err", err.Error()))
				return nil
			}
			readErrors++
			h.l.WarnContext(ctx, "stdio.read.fail", slog.String("err", err.Error()), slog.Int("consecutive", readErrors))
			if h.maxReadErrors > 0 && readErrors >= h.maxReadErrors {
				return fmt.Errorf("stdio: giving up after %d read errors: %w", readErrors, err)
			}
			continue
		}
		readErrors = 0
		eof := errors.Is(err, io.EOF)

		if rec := bytes.TrimSpace(line); len(rec) > 0 {
			if resp := h.dispatch(ctx, eng, rec); resp != nil {
				select {
				case out <- resp:
				case <-ctx.Done():
					return nil
				}
			}
		}

		if eof {
			h.l.InfoContext(ctx, "stdio.read.eof")
			return nil
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, eng *engine.Engine, rec []byte) *jsonrpc.Response {
	resp, err := eng.HandleMessage(ctx, rec)
	if err != nil {
		h.l.ErrorContext(ctx, "stdio.dispatch.fail", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(jsonrpc.RecoverID(rec), jsonrpc.ErrorCodeInternalError, "", nil)
	}
	return resp
}

func (h *Handler) writeLoop(ctx context.Context, in <-chan *jsonrpc.Response) error {
	bw := bufio.NewWriter(h.w)
	for {
		select {
		case resp, ok := <-in:
			if !ok {
				return nil
			}
			if err := writeLine(bw, resp); err != nil {
				return fmt.Errorf("stdio: write response: %w", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func writeLine(bw *bufio.Writer, resp *jsonrpc.Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := bw.Write(b); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	return bw.Flush()
}
