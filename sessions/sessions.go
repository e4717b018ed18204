package sessions

import (
	"context"
	"errors"
)

// DefaultCapacity is the number of undelivered payloads a session buffers
// before further deliveries are refused.
const DefaultCapacity = 100

var (
	// ErrSessionNotFound is returned for ids that were never opened or have
	// been closed.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFull is returned when a session's buffer is at capacity.
	ErrSessionFull = errors.New("session buffer full")
)

// Session is one open push connection as seen by its owner.
type Session interface {
	ID() string
	// Messages yields delivered payloads in delivery order. The channel is
	// closed when the session is closed.
	Messages() <-chan []byte
}

// Directory tracks open sessions and routes payloads to them.
//
// Deliver never blocks on a slow consumer: a session whose buffer is full
// rejects the payload with ErrSessionFull. All methods are safe for
// concurrent use.
type Directory interface {
	// Open creates a session with a fresh, unguessable id.
	Open(ctx context.Context) (Session, error)
	// Lookup reports whether id names an open session.
	Lookup(ctx context.Context, id string) (bool, error)
	// Deliver enqueues payload on the session's channel.
	Deliver(ctx context.Context, id string, payload []byte) error
	// Close removes the session and closes its channel. Closing an unknown
	// session is not an error.
	Close(ctx context.Context, id string) error
}
