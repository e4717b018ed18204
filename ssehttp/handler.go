package ssehttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ggoodman/mcp-toolhost-go/internal/engine"
	"github.com/ggoodman/mcp-toolhost-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-toolhost-go/internal/logctx"
	"github.com/ggoodman/mcp-toolhost-go/mcpservice"
	"github.com/ggoodman/mcp-toolhost-go/sessions"
	"github.com/ggoodman/mcp-toolhost-go/sessions/memoryhost"
)

var (
	_ http.Handler = (*Handler)(nil)
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

const (
	sessionIDParam = "sessionId"

	endpointEvent = "endpoint"
	messageEvent  = "message"
)

// writeJSONError emits a minimal JSON body for HTTP-layer rejections. We do NOT
// claim JSON-RPC framing here; this is transport-level.
// Shape: {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

// Handler implements the SSE session transport.
type Handler struct {
	router chi.Router
	log    *slog.Logger
	eng    *engine.Engine
	dir    sessions.Directory

	ssePath     string
	messagePath string
	keepAlive   time.Duration
	engineOpts  []engine.EngineOption
}

// New constructs a Handler serving srv's tools.
func New(srv *mcpservice.Server, opts ...Option) *Handler {
	h := &Handler{
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		ssePath:     "/sse",
		messagePath: "/message",
		keepAlive:   DefaultKeepAlive,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.dir == nil {
		h.dir = memoryhost.New()
	}
	h.log = logctx.New(h.log.Handler())
	h.eng = engine.NewEngine(srv, append([]engine.EngineOption{engine.WithLogger(h.log)}, h.engineOpts...)...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestData)
	r.Use(middleware.Recoverer)

	r.Get(h.ssePath, h.handleSSE)
	r.Post(h.messagePath, h.handleMessage)
	r.NotFound(h.handleNotFound)
	r.MethodNotAllowed(h.handleNotFound)

	h.router = r
	return h
}

// Directory returns the session directory backing the handler.
func (h *Handler) Directory() sessions.Directory { return h.dir }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) requestData(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  middleware.GetReqID(r.Context()),
			Method:     r.Method,
			UserAgent:  r.UserAgent(),
			RemoteAddr: r.RemoteAddr,
			Path:       r.URL.Path,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.log.WarnContext(r.Context(), "http.route.miss")
	writeJSONError(w, http.StatusNotFound, "not found")
}

// handleSSE opens a session and streams its payloads until the client goes
// away or the session is closed.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		writeJSONError(w, http.StatusNotAcceptable, "client must accept text/event-stream")
		h.log.WarnContext(ctx, "accept.unsupported", slog.String("accept", r.Header.Get("Accept")))
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}

	sess, err := h.dir.Open(ctx)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to open session")
		h.log.ErrorContext(ctx, "session.open.fail", slog.String("err", err.Error()))
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sess.ID(), Transport: "sse"})
	h.log.InfoContext(ctx, "session.open.ok")

	defer func() {
		if err := h.dir.Close(context.WithoutCancel(ctx), sess.ID()); err != nil {
			h.log.ErrorContext(ctx, "session.close.fail", slog.String("err", err.Error()))
			return
		}
		h.log.InfoContext(ctx, "session.close.ok", slog.Duration("dur", time.Since(start)))
	}()

	w.Header().Set("Content-Type", eventStreamMediaType.String())
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	endpoint := h.messagePath + "?" + url.Values{sessionIDParam: {sess.ID()}}.Encode()
	if err := writeSSEEvent(w, f, endpointEvent, []byte(endpoint)); err != nil {
		h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
		return
	}

	var keepAlive <-chan time.Time
	if h.keepAlive > 0 {
		t := time.NewTicker(h.keepAlive)
		defer t.Stop()
		keepAlive = t.C
	}

	h.log.InfoContext(ctx, "sse.stream.start")
	for {
		select {
		case <-ctx.Done():
			h.log.InfoContext(ctx, "sse.stream.disconnect")
			return

		case payload, ok := <-sess.Messages():
			if !ok {
				h.log.InfoContext(ctx, "sse.stream.closed")
				return
			}
			if err := writeSSEEvent(w, f, messageEvent, payload); err != nil {
				h.log.ErrorContext(ctx, "sse.write.fail", slog.String("err", err.Error()))
				return
			}
			h.log.DebugContext(ctx, "sse.message.deliver")

		case <-keepAlive:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			f.Flush()
		}
	}
}

// submission is the loosely typed shape accepted on the submit route.
type submission struct {
	Method string          `json:"method"`
	ID     json.RawMessage `json:"id"`
	Params json.RawMessage `json:"params"`
}

// canonical rebuilds a well-formed request. Non-object params are dropped and
// ids that are neither strings nor numbers fall back to the default id.
func (s submission) canonical() *jsonrpc.Request {
	req := &jsonrpc.Request{JSONRPCVersion: jsonrpc.ProtocolVersion, Method: s.Method}
	if p := bytes.TrimSpace(s.Params); len(p) > 0 && p[0] == '{' {
		req.Params = p
	}
	if raw := bytes.TrimSpace(s.ID); len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
		var id jsonrpc.RequestID
		if err := id.UnmarshalJSON(raw); err != nil || id.IsNil() {
			req.ID = jsonrpc.FallbackID()
		} else {
			req.ID = &id
		}
	}
	return req
}

// handleMessage dispatches a request for an open session. Successful
// responses are pushed onto the session's stream as well as returned.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	sessID := r.URL.Query().Get(sessionIDParam)
	if sessID == "" {
		writeJSONError(w, http.StatusBadRequest, "missing sessionId query parameter")
		h.log.WarnContext(ctx, "session.id.missing")
		return
	}
	ctx = logctx.WithSessionData(ctx, &logctx.SessionData{SessionID: sessID, Transport: "sse"})

	if r.Header.Get("Content-Type") != "" {
		ctype, err := contenttype.GetMediaType(r)
		if err != nil || !ctype.Matches(jsonMediaType) {
			writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
			h.log.WarnContext(ctx, "content_type.unsupported")
			return
		}
	}

	var sub submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		h.log.WarnContext(ctx, "json.decode.fail", slog.String("err", err.Error()))
		return
	}
	if sub.Method == "" {
		writeJSONError(w, http.StatusBadRequest, "missing method")
		h.log.WarnContext(ctx, "jsonrpc.method.missing")
		return
	}
	req := sub.canonical()

	msgType := "request"
	if req.IsNotification() {
		msgType = "notification"
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: msgType})

	ok, err := h.dir.Lookup(ctx, sessID)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to load session")
		h.log.ErrorContext(ctx, "session.load.fail", slog.String("err", err.Error()))
		return
	}
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found")
		h.log.InfoContext(ctx, "session.load.miss")
		return
	}

	res, err := h.eng.HandleRequest(ctx, req)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
		h.log.ErrorContext(ctx, "rpc.inbound.fail", slog.String("err", err.Error()))
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusAccepted)
		h.log.InfoContext(ctx, "notification.inbound.ok", slog.Duration("dur", time.Since(start)))
		return
	}

	b, err := json.Marshal(res)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		h.log.ErrorContext(ctx, "rpc.response.marshal.fail", slog.String("err", err.Error()))
		return
	}

	if res.IsSuccess() {
		if err := h.dir.Deliver(ctx, sessID, b); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sessions.ErrSessionNotFound) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, "failed to deliver response to session")
			h.log.ErrorContext(ctx, "session.deliver.fail", slog.String("err", err.Error()))
			return
		}
	} else {
		h.log.DebugContext(ctx, "session.deliver.skip")
	}

	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(b); err != nil {
		h.log.ErrorContext(ctx, "http.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "rpc.inbound.ok", slog.Duration("dur", time.Since(start)))
}

// writeSSEEvent writes a named Server-Sent Event and flushes it. Payloads
// must not contain newlines; compact JSON never does.
func writeSSEEvent(w io.Writer, f http.Flusher, event string, payload []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: ", event); err != nil {
		return fmt.Errorf("failed to write SSE event header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("failed to write SSE payload: %w", err)
	}
	if _, err := io.WriteString(w, "\n\n"); err != nil {
		return fmt.Errorf("failed to write SSE frame terminator: %w", err)
	}
	f.Flush()
	return nil
}
