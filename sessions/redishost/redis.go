package redishost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/mcp-toolhost-go/sessions"
)

// Config for the Redis-backed Directory. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: SESSIONS_KEY_PREFIX
	KeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=mcp:sessions:"`
	// Capacity bounds undelivered payloads per session. ENV: SESSIONS_CAPACITY
	Capacity int `env:"SESSIONS_CAPACITY,default=100"`
	// TTL of a session's liveness key; the owning node refreshes it while the
	// session is open. ENV: SESSIONS_TTL
	TTL time.Duration `env:"SESSIONS_TTL,default=30s"`
}

// Host implements sessions.Directory on Redis. The node that opens a session
// owns its channel and forwards entries from the session's stream into it;
// any node may deliver.
type Host struct {
	client    *redis.Client
	keyPrefix string
	capacity  int
	ttl       time.Duration

	mu     sync.Mutex
	owned  map[string]*session
	closed bool
}

type session struct {
	id     string
	ch     chan []byte
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *session) ID() string              { return s.id }
func (s *session) Messages() <-chan []byte { return s.ch }

func New(cfg Config) (*Host, error) {
	addr := cfg.RedisAddr
	if addr == "" {
		addr = "localhost:6379"
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	if err := cl.Ping(context.Background()).Err(); err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "mcp:sessions:"
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = sessions.DefaultCapacity
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Host{
		client:    cl,
		keyPrefix: prefix,
		capacity:  capacity,
		ttl:       ttl,
		owned:     make(map[string]*session),
	}, nil
}

// NewFromEnv builds a Host using envdecode to populate Config.
func NewFromEnv() (*Host, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode redis session config: %w", err)
	}
	return New(cfg)
}

// Shutdown stops forwarding for every session this node owns and closes the
// Redis client. Session keys are left to expire.
func (h *Host) Shutdown() error {
	h.mu.Lock()
	h.closed = true
	owned := h.owned
	h.owned = make(map[string]*session)
	h.mu.Unlock()

	for _, s := range owned {
		s.cancel()
		<-s.done
	}
	return h.client.Close()
}

// --- Key helpers ---

func (h *Host) aliveKey(id string) string  { return h.keyPrefix + "alive:" + id }
func (h *Host) streamKey(id string) string { return h.keyPrefix + "stream:" + id }

var _ sessions.Directory = (*Host)(nil)

func (h *Host) Open(ctx context.Context) (sessions.Session, error) {
	id := uuid.NewString()
	if err := h.client.Set(ctx, h.aliveKey(id), "1", h.ttl).Err(); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}

	fctx, cancel := context.WithCancel(context.Background())
	s := &session{id: id, ch: make(chan []byte), cancel: cancel, done: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		_ = h.client.Del(context.WithoutCancel(ctx), h.aliveKey(id)).Err()
		return nil, errors.New("redis session directory is shut down")
	}
	h.owned[id] = s
	h.mu.Unlock()

	go h.forward(fctx, s)
	return s, nil
}

func (h *Host) Lookup(ctx context.Context, id string) (bool, error) {
	n, err := h.client.Exists(ctx, h.aliveKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// deliverScript checks liveness and pending length and appends atomically.
var deliverScript = redis.NewScript(`
local alive = KEYS[1]
local stream = KEYS[2]
if redis.call('EXISTS', alive) == 0 then
  return -1
end
if redis.call('XLEN', stream) >= tonumber(ARGV[2]) then
  return 0
end
redis.call('XADD', stream, '*', 'd', ARGV[1])
redis.call('PEXPIRE', stream, ARGV[3])
return 1
`)

func (h *Host) Deliver(ctx context.Context, id string, payload []byte) error {
	keys := []string{h.aliveKey(id), h.streamKey(id)}
	res, err := deliverScript.Run(ctx, h.client, keys, payload, h.capacity, h.ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("deliver to session: %w", err)
	}
	switch res {
	case -1:
		return sessions.ErrSessionNotFound
	case 0:
		return sessions.ErrSessionFull
	default:
		return nil
	}
}

// Close removes the session's keys. When this node owns the session, its
// forwarder is stopped and the channel closed before Close returns.
func (h *Host) Close(ctx context.Context, id string) error {
	h.mu.Lock()
	s, ok := h.owned[id]
	delete(h.owned, id)
	h.mu.Unlock()

	err := h.client.Del(context.WithoutCancel(ctx), h.aliveKey(id), h.streamKey(id)).Err()
	if ok {
		s.cancel()
		<-s.done
	}
	return err
}

// forward moves stream entries into the session channel one at a time. An
// entry is removed from the stream only after the owner has received it, so
// the stream length is the number of undelivered payloads.
func (h *Host) forward(ctx context.Context, s *session) {
	defer close(s.done)
	defer close(s.ch)

	key := h.streamKey(s.id)
	last := "0-0"
	refreshEvery := h.ttl / 3
	nextRefresh := time.Now().Add(refreshEvery)

	for {
		if ctx.Err() != nil {
			return
		}
		if time.Now().After(nextRefresh) {
			ok, err := h.client.Expire(ctx, h.aliveKey(s.id), h.ttl).Result()
			if err == nil && !ok {
				// closed elsewhere
				return
			}
			nextRefresh = time.Now().Add(refreshEvery)
		}

		res, err := h.client.XRead(ctx, &redis.XReadArgs{Streams: []string{key, last}, Count: int64(h.capacity), Block: 500 * time.Millisecond}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		for _, stream := range res {
			for _, m := range stream.Messages {
				last = m.ID
				var payload []byte
				switch v := m.Values["d"].(type) {
				case string:
					payload = []byte(v)
				case []byte:
					payload = v
				default:
					payload = []byte(fmt.Sprintf("%v", v))
				}
				select {
				case s.ch <- payload:
				case <-ctx.Done():
					return
				}
				_ = h.client.XDel(ctx, key, m.ID).Err()
			}
		}
	}
}
