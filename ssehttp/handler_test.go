package ssehttp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ggoodman/mcp-toolhost-go/examples/calculator"
	"github.com/ggoodman/mcp-toolhost-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-toolhost-go/sessions"
	"github.com/ggoodman/mcp-toolhost-go/sessions/memoryhost"
)

type sseEvent struct {
	name string
	data string
}

// sseStream is a client-side view of one open push stream.
type sseStream struct {
	t      *testing.T
	events chan sseEvent
}

func newTestServer(t *testing.T, opts ...Option) (*Handler, *httptest.Server) {
	t.Helper()
	h := New(calculator.NewServer(), opts...)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return h, srv
}

func openStream(t *testing.T, baseURL string) *sseStream {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/sse", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("open stream status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}
	t.Cleanup(func() {
		cancel()
		_ = resp.Body.Close()
	})

	s := &sseStream{t: t, events: make(chan sseEvent, 16)}
	go func() {
		defer close(s.events)
		sc := bufio.NewScanner(resp.Body)
		var ev sseEvent
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, ":"):
				s.events <- sseEvent{name: ":", data: strings.TrimSpace(line[1:])}
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			case line == "" && (ev.name != "" || ev.data != ""):
				s.events <- ev
				ev = sseEvent{}
			}
		}
	}()
	return s
}

func (s *sseStream) next(timeout time.Duration) sseEvent {
	s.t.Helper()
	select {
	case ev, ok := <-s.events:
		if !ok {
			s.t.Fatal("stream closed")
		}
		return ev
	case <-time.After(timeout):
		s.t.Fatal("timeout waiting for event")
	}
	return sseEvent{}
}

func (s *sseStream) expectNone(d time.Duration) {
	s.t.Helper()
	select {
	case ev, ok := <-s.events:
		if ok {
			s.t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(d):
	}
}

// endpoint reads the announcement event and returns the submit path.
func (s *sseStream) endpoint() string {
	s.t.Helper()
	ev := s.next(2 * time.Second)
	if ev.name != "endpoint" {
		s.t.Fatalf("first event = %+v, want endpoint", ev)
	}
	if !strings.HasPrefix(ev.data, "/message?sessionId=") {
		s.t.Fatalf("unexpected endpoint %q", ev.data)
	}
	return ev.data
}

func post(t *testing.T, url, contentType, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestSSE_CallIsRepliedAndPushed(t *testing.T) {
	_, srv := newTestServer(t)
	s := openStream(t, srv.URL)
	ep := s.endpoint()

	status, body := post(t, srv.URL+ep, "application/json",
		`{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"calculator_add","arguments":{"a":2,"b":3}}}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d body=%s", status, body)
	}
	want := `{"jsonrpc":"2.0","result":{"content":[{"type":"text","text":"5"}],"isError":false},"id":1}`
	if body != want {
		t.Fatalf("body = %s, want %s", body, want)
	}

	ev := s.next(2 * time.Second)
	if ev.name != "message" || ev.data != want {
		t.Fatalf("pushed event = %+v", ev)
	}
}

func TestSSE_SessionIsolation(t *testing.T) {
	_, srv := newTestServer(t)
	s1 := openStream(t, srv.URL)
	s2 := openStream(t, srv.URL)
	ep1, ep2 := s1.endpoint(), s2.endpoint()
	if ep1 == ep2 {
		t.Fatalf("expected distinct session ids, both %q", ep1)
	}

	status, _ := post(t, srv.URL+ep1, "application/json", `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	ev := s1.next(2 * time.Second)
	if ev.name != "message" || !strings.Contains(ev.data, `"id":"a"`) {
		t.Fatalf("stream 1 event = %+v", ev)
	}
	s2.expectNone(100 * time.Millisecond)
}

func TestSSE_NotificationAccepted(t *testing.T) {
	_, srv := newTestServer(t)
	s := openStream(t, srv.URL)
	ep := s.endpoint()

	status, body := post(t, srv.URL+ep, "application/json", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	if status != http.StatusAccepted || body != "" {
		t.Fatalf("status = %d body = %q", status, body)
	}
	s.expectNone(100 * time.Millisecond)
}

func TestSSE_ErrorResponseNotPushed(t *testing.T) {
	_, srv := newTestServer(t)
	s := openStream(t, srv.URL)
	ep := s.endpoint()

	status, body := post(t, srv.URL+ep, "application/json",
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"nope","arguments":{}}}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var resp jsonrpc.Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != jsonrpc.ErrorCodeMethodNotFound {
		t.Fatalf("expected method not found, got %s", body)
	}
	s.expectNone(100 * time.Millisecond)

	// business failures are successful responses and are pushed
	status, body = post(t, srv.URL+ep, "application/json",
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"calculator_divide","arguments":{"a":1,"b":0}}}`)
	if status != http.StatusOK || !strings.Contains(body, `"isError":true`) {
		t.Fatalf("status = %d body = %s", status, body)
	}
	if ev := s.next(2 * time.Second); ev.data != body {
		t.Fatalf("pushed %q, want %q", ev.data, body)
	}
}

func TestSSE_LenientReconstruction(t *testing.T) {
	_, srv := newTestServer(t)
	s := openStream(t, srv.URL)
	ep := s.endpoint()

	tests := []struct {
		name   string
		body   string
		wantID string
	}{
		{"no jsonrpc field", `{"id":1,"method":"tools/list"}`, `"id":1`},
		{"array params dropped", `{"jsonrpc":"2.0","id":2,"method":"tools/list","params":[1,2]}`, `"id":2`},
		{"object id falls back", `{"jsonrpc":"2.0","id":{"x":1},"method":"tools/list"}`, `"id":0`},
		{"string id kept", `{"jsonrpc":"2.0","id":"req-9","method":"tools/list"}`, `"id":"req-9"`},
	}
	// one stream is shared, so the cases run in order on the parent test
	for _, tt := range tests {
		status, body := post(t, srv.URL+ep, "application/json", tt.body)
		if status != http.StatusOK {
			t.Fatalf("%s: status = %d body = %s", tt.name, status, body)
		}
		if !strings.Contains(body, `"tools":[`) || !strings.HasSuffix(body, tt.wantID+"}") {
			t.Fatalf("%s: unexpected body %s", tt.name, body)
		}
		if ev := s.next(2 * time.Second); ev.data != body {
			t.Fatalf("%s: pushed %q, want %q", tt.name, ev.data, body)
		}
	}
}

func TestSSE_TransportErrors(t *testing.T) {
	_, srv := newTestServer(t)
	s := openStream(t, srv.URL)
	ep := s.endpoint()

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		accept      string
		body        string
		want        int
	}{
		{"missing session id", http.MethodPost, "/message", "application/json", "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, http.StatusBadRequest},
		{"unknown session", http.MethodPost, "/message?sessionId=does-not-exist", "application/json", "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, http.StatusNotFound},
		{"malformed json", http.MethodPost, ep, "application/json", "", `{"jsonrpc":`, http.StatusBadRequest},
		{"missing method", http.MethodPost, ep, "application/json", "", `{"jsonrpc":"2.0","id":1}`, http.StatusBadRequest},
		{"wrong content type", http.MethodPost, ep, "text/plain", "", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, http.StatusUnsupportedMediaType},
		{"stream requires event-stream", http.MethodGet, "/sse", "", "application/json", "", http.StatusNotAcceptable},
		{"unknown route", http.MethodGet, "/nope", "", "", "", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/sse", "", "", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.want)
			}
			var body struct {
				Error struct {
					Code    int    `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if body.Error.Code != tt.want || body.Error.Message == "" {
				t.Fatalf("unexpected error body %+v", body)
			}
		})
	}
	s.expectNone(50 * time.Millisecond)
}

func TestSSE_DisconnectClosesSession(t *testing.T) {
	h, srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	var id string
	for id == "" {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasPrefix(line, "data: /message?sessionId=") {
			id = strings.TrimSpace(strings.TrimPrefix(line, "data: /message?sessionId="))
		}
	}
	if ok, _ := h.Directory().Lookup(context.Background(), id); !ok {
		t.Fatal("session should be open while streaming")
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ok, _ := h.Directory().Lookup(context.Background(), id); !ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session still registered after disconnect")
}

func TestSSE_KeepAlive(t *testing.T) {
	_, srv := newTestServer(t, WithKeepAlive(20*time.Millisecond))
	s := openStream(t, srv.URL)
	s.endpoint()

	ev := s.next(2 * time.Second)
	if ev.name != ":" || ev.data != "keep-alive" {
		t.Fatalf("expected keep-alive comment, got %+v", ev)
	}
}

func TestSSE_CustomPaths(t *testing.T) {
	_, srv := newTestServer(t, WithSSEPath("/events"), WithMessagePath("/rpc"))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/events", nil)
	req.Header.Set("Accept", "text/event-stream")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)
	if line, _ := r.ReadString('\n'); line != "event: endpoint\n" {
		t.Fatalf("first line = %q", line)
	}
	if line, _ := r.ReadString('\n'); !strings.HasPrefix(line, "data: /rpc?sessionId=") {
		t.Fatalf("endpoint line = %q", line)
	}
}

// stubDirectory wraps a real directory and overrides delivery.
type stubDirectory struct {
	sessions.Directory
	deliverErr error
}

func (d stubDirectory) Deliver(context.Context, string, []byte) error { return d.deliverErr }

func TestSSE_DeliveryFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"full session", sessions.ErrSessionFull, http.StatusInternalServerError},
		{"session gone", sessions.ErrSessionNotFound, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := stubDirectory{Directory: memoryhost.New(), deliverErr: tt.err}
			_, srv := newTestServer(t, WithDirectory(dir))

			sess, err := dir.Open(context.Background())
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			status, _ := post(t, srv.URL+"/message?sessionId="+sess.ID(), "application/json", `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
			if status != tt.want {
				t.Fatalf("status = %d, want %d", status, tt.want)
			}
		})
	}
}

func TestSSE_SDKClient(t *testing.T) {
	_, srv := newTestServer(t)
	ctx := t.Context()

	client := sdk.NewClient(&sdk.Implementation{Name: "e2e", Version: "0.0.0"}, &sdk.ClientOptions{})
	cs, err := client.Connect(ctx, &sdk.SSEClientTransport{Endpoint: srv.URL + "/sse"}, &sdk.ClientSessionOptions{})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer cs.Close()

	lt, err := cs.ListTools(ctx, &sdk.ListToolsParams{})
	if err != nil {
		t.Fatalf("ListTools failed: %v", err)
	}
	if len(lt.Tools) != 4 || lt.Tools[0].Name != "calculator_add" {
		t.Fatalf("unexpected tools: %+v", lt.Tools)
	}

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{
		Name:      "calculator_multiply",
		Arguments: map[string]any{"a": 4, "b": 5},
	})
	if err != nil {
		t.Fatalf("CallTool failed: %v", err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("unexpected call result: %+v", res)
	}
	text, ok := res.Content[0].(*sdk.TextContent)
	if !ok || text.Text != "20" {
		t.Fatalf("unexpected content: %+v", res.Content[0])
	}
}
