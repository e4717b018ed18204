package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ggoodman/mcp-toolhost-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-toolhost-go/internal/logctx"
	"github.com/ggoodman/mcp-toolhost-go/mcp"
	"github.com/ggoodman/mcp-toolhost-go/mcpservice"
)

const instrumentationName = "github.com/ggoodman/mcp-toolhost-go/internal/engine"

// Engine turns decoded JSON-RPC requests into responses against a tool
// server. It holds no per-connection state and is safe for concurrent use by
// any number of transports.
type Engine struct {
	srv *mcpservice.Server
	log *slog.Logger

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	tracer    trace.Tracer
	requests  metric.Int64Counter
	toolCalls metric.Int64Counter
	duration  metric.Float64Histogram
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTracerProvider sets the provider for dispatch spans. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *Engine) {
		if tp != nil {
			e.tracerProvider = tp
		}
	}
}

// WithMeterProvider sets the provider for request and tool call metrics. The
// global provider is used by default.
func WithMeterProvider(mp metric.MeterProvider) EngineOption {
	return func(e *Engine) {
		if mp != nil {
			e.meterProvider = mp
		}
	}
}

func NewEngine(srv *mcpservice.Server, opts ...EngineOption) *Engine {
	e := &Engine{
		srv: srv,
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.tracerProvider == nil {
		e.tracerProvider = otel.GetTracerProvider()
	}
	if e.meterProvider == nil {
		e.meterProvider = otel.GetMeterProvider()
	}
	e.tracer = e.tracerProvider.Tracer(instrumentationName)

	meter := e.meterProvider.Meter(instrumentationName)
	var err error
	if e.requests, err = meter.Int64Counter(
		"toolhost.rpc.requests",
		metric.WithDescription("Number of JSON-RPC requests dispatched"),
	); err != nil {
		otel.Handle(err)
	}
	if e.toolCalls, err = meter.Int64Counter(
		"toolhost.tool.calls",
		metric.WithDescription("Number of tool invocations"),
	); err != nil {
		otel.Handle(err)
	}
	if e.duration, err = meter.Float64Histogram(
		"toolhost.rpc.duration",
		metric.WithDescription("JSON-RPC dispatch latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		otel.Handle(err)
	}
	return e
}

// Server returns the tool server requests are dispatched against.
func (e *Engine) Server() *mcpservice.Server { return e.srv }

// HandleMessage decodes one framed record and dispatches it. Records that are
// not a JSON-RPC request object yield a ParseError response whose id is
// recovered from the raw bytes when possible. A nil response means nothing
// must be written back.
func (e *Engine) HandleMessage(ctx context.Context, data []byte) (*jsonrpc.Response, error) {
	req, err := jsonrpc.DecodeRequest(data)
	if err != nil {
		id := jsonrpc.RecoverID(data)
		e.log.InfoContext(ctx, "rpc.inbound.parse_error",
			slog.String("err", err.Error()),
			slog.String("id", id.String()),
		)
		e.record(ctx, "", "parse_error", time.Time{})
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeParseError, "", nil), nil
	}
	return e.HandleRequest(ctx, req)
}

// HandleRequest validates and dispatches a request. Notifications return a
// nil response. A returned error means no response could be produced; the
// caller reports it as a transport-level failure.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "mcp.dispatch "+req.Method,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", req.Method),
		),
	)
	defer span.End()

	msgType := "request"
	if req.IsNotification() {
		msgType = "notification"
	}
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: req.Method, ID: req.ID.String(), Type: msgType})

	if req.JSONRPCVersion != jsonrpc.ProtocolVersion || req.Method == "" {
		e.log.InfoContext(ctx, "rpc.inbound.invalid",
			slog.String("jsonrpc", req.JSONRPCVersion),
			slog.Int64("dur_ms", time.Since(start).Milliseconds()),
		)
		span.SetStatus(codes.Error, "invalid request")
		e.record(ctx, req.Method, "invalid_request", start)
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidRequest, "", nil), nil
	}

	if req.IsNotification() {
		e.handleNotification(ctx, req)
		e.record(ctx, req.Method, "notification", start)
		return nil, nil
	}

	var (
		res *jsonrpc.Response
		err error
	)
	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		res, err = e.handleInitialize(ctx, req)
	case mcp.ToolsListMethod:
		res, err = e.handleToolsList(ctx, req)
	case mcp.ToolsCallMethod:
		res, err = e.handleToolCall(ctx, req)
	default:
		e.log.InfoContext(ctx, "rpc.inbound.unknown_method")
		res = jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "", nil)
	}

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "internal_error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.log.ErrorContext(ctx, "rpc.inbound.fail", slog.String("err", err.Error()))
	case !res.IsSuccess():
		outcome = "error"
		span.SetAttributes(attribute.Int("rpc.jsonrpc.error_code", int(res.Error.Code)))
		span.SetStatus(codes.Error, res.Error.Message)
	default:
		span.SetStatus(codes.Ok, "")
	}
	e.record(ctx, req.Method, outcome, start)
	return res, err
}

func (e *Engine) handleNotification(ctx context.Context, req *jsonrpc.Request) {
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod:
		e.log.InfoContext(ctx, "rpc.notification.initialized")
	default:
		e.log.DebugContext(ctx, "rpc.notification.ignored")
	}
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()

	var params mcp.InitializeRequest
	if hasParams(req.Params) {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	result := &mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities:    e.srv.Capabilities(),
		ServerInfo:      e.srv.Info(),
		Instructions:    e.srv.Instructions(),
	}

	e.log.InfoContext(ctx, "engine.initialize.ok",
		slog.String("client_name", params.ClientInfo.Name),
		slog.String("client_version", params.ClientInfo.Version),
		slog.String("client_protocol_version", params.ProtocolVersion),
		slog.Int("tool_count", len(result.Capabilities.Tools)),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return jsonrpc.NewResultResponse(req.ID, result)
}

func (e *Engine) handleToolsList(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()

	var params mcp.ListToolsRequest
	if hasParams(req.Params) {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
		}
	}

	result := &mcp.ListToolsResult{Tools: e.srv.Registry().List()}

	e.log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()), slog.Int("tool_count", len(result.Tools)))
	return jsonrpc.NewResultResponse(req.ID, result)
}

func (e *Engine) handleToolCall(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	start := time.Now()

	var params mcp.CallToolRequestReceived
	if err := json.Unmarshal(req.Params, &params); err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}
	if params.Name == "" {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", "missing tool name"), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}
	args, err := mcpservice.ParseArguments(params.Arguments)
	if err != nil {
		e.log.InfoContext(ctx, "engine.handle_request.invalid", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid params", nil), nil
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("tool.name", params.Name))

	tool, ok := e.srv.Registry().Lookup(params.Name)
	if !ok {
		e.log.InfoContext(ctx, "tool.call.unknown", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		e.countToolCall(ctx, params.Name, "not_found")
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "", nil), nil
	}

	res, err := tool.Call(ctx, args)
	if err != nil {
		// Detail stays in the logs; the caller only learns the tool failed.
		e.log.ErrorContext(ctx, "tool.call.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		e.countToolCall(ctx, params.Name, "failed")
		if errors.Is(err, context.Canceled) {
			span.SetAttributes(attribute.Bool("tool.cancelled", true))
		}
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeServerError, "", nil), nil
	}

	res = textOnly(res)
	outcome := "ok"
	if res.IsError {
		outcome = "tool_error"
	}
	e.countToolCall(ctx, params.Name, outcome)
	e.log.InfoContext(ctx, "tool.call.ok", slog.Bool("is_error", res.IsError), slog.Int64("dur_ms", time.Since(start).Milliseconds()))

	return jsonrpc.NewResultResponse(req.ID, res)
}

// textOnly repackages a tool result so that every content item is text. The
// tool's own value is left untouched.
func textOnly(res *mcpservice.ToolResult) *mcpservice.ToolResult {
	if res == nil {
		return mcpservice.TextResult("")
	}
	out := &mcpservice.ToolResult{
		Content: make([]mcp.ContentBlock, len(res.Content)),
		IsError: res.IsError,
	}
	for i, c := range res.Content {
		out.Content[i] = mcp.ContentBlock{Type: mcp.ContentTypeText, Text: c.Text}
	}
	return out
}

func (e *Engine) record(ctx context.Context, method, outcome string, start time.Time) {
	attrs := metric.WithAttributes(
		attribute.String("rpc.method", method),
		attribute.String("outcome", outcome),
	)
	if e.requests != nil {
		e.requests.Add(ctx, 1, attrs)
	}
	if e.duration != nil && !start.IsZero() {
		e.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}

func (e *Engine) countToolCall(ctx context.Context, name, outcome string) {
	if e.toolCalls == nil {
		return
	}
	e.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("outcome", outcome),
	))
}

func hasParams(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
