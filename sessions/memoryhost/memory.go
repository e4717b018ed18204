package memoryhost

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ggoodman/mcp-toolhost-go/sessions"
)

// Host is an in-memory implementation of sessions.Directory.
type Host struct {
	capacity int

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id string
	ch chan []byte
}

func (s *session) ID() string              { return s.id }
func (s *session) Messages() <-chan []byte { return s.ch }

// Option configures a Host.
type Option func(*Host)

// WithCapacity sets the per-session buffer size. Non-positive values are
// ignored.
func WithCapacity(n int) Option {
	return func(h *Host) {
		if n > 0 {
			h.capacity = n
		}
	}
}

func New(opts ...Option) *Host {
	h := &Host{
		capacity: sessions.DefaultCapacity,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ sessions.Directory = (*Host)(nil)

func (h *Host) Open(ctx context.Context) (sessions.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &session{id: uuid.NewString(), ch: make(chan []byte, h.capacity)}

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	return s, nil
}

func (h *Host) Lookup(_ context.Context, id string) (bool, error) {
	h.mu.Lock()
	_, ok := h.sessions[id]
	h.mu.Unlock()
	return ok, nil
}

// Deliver enqueues a copy of payload without blocking. The send happens under
// the directory lock so it cannot race with Close.
func (h *Host) Deliver(_ context.Context, id string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return sessions.ErrSessionNotFound
	}
	select {
	case s.ch <- append([]byte(nil), payload...):
		return nil
	default:
		return sessions.ErrSessionFull
	}
}

func (h *Host) Close(_ context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[id]
	if !ok {
		return nil
	}
	delete(h.sessions, id)
	close(s.ch)
	return nil
}

// Len returns the number of open sessions.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}
