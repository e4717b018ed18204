// Package sessionhosttest is a conformance suite for sessions.Directory
// implementations.
package sessionhosttest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ggoodman/mcp-toolhost-go/sessions"
)

// DirectoryFactory creates a new Directory whose sessions buffer capacity
// payloads.
type DirectoryFactory func(t *testing.T, capacity int) sessions.Directory

// RunDirectoryTests runs the complete Directory test suite against the provided factory.
func RunDirectoryTests(t *testing.T, factory DirectoryFactory) {
	t.Run("Open_UniqueIDs", func(t *testing.T) { testOpenUniqueIDs(t, factory) })
	t.Run("Deliver_ReachesOwnerInOrder", func(t *testing.T) { testDeliverInOrder(t, factory) })
	t.Run("Deliver_IsolationBetweenSessions", func(t *testing.T) { testIsolation(t, factory) })
	t.Run("Deliver_UnknownSession", func(t *testing.T) { testDeliverUnknown(t, factory) })
	t.Run("Deliver_FullSessionRefuses", func(t *testing.T) { testDeliverFull(t, factory) })
	t.Run("Close_ClosesChannelAndForgets", func(t *testing.T) { testClose(t, factory) })
	t.Run("Concurrent_DeliverAndClose", func(t *testing.T) { testConcurrentDeliverAndClose(t, factory) })
}

func receive(t *testing.T, s sessions.Session) []byte {
	t.Helper()
	select {
	case msg, ok := <-s.Messages():
		if !ok {
			t.Fatalf("session %s channel closed unexpectedly", s.ID())
		}
		return msg
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for message on session %s", s.ID())
		return nil
	}
}

func testOpenUniqueIDs(t *testing.T, factory DirectoryFactory) {
	d := factory(t, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		s, err := d.Open(ctx)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if s.ID() == "" || seen[s.ID()] {
			t.Fatalf("duplicate or empty id %q", s.ID())
		}
		seen[s.ID()] = true

		ok, err := d.Lookup(ctx, s.ID())
		if err != nil || !ok {
			t.Fatalf("lookup of fresh session = %v, %v", ok, err)
		}
		defer func(id string) { _ = d.Close(context.Background(), id) }(s.ID())
	}
}

func testDeliverInOrder(t *testing.T, factory DirectoryFactory) {
	d := factory(t, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = d.Close(context.Background(), s.ID()) }()

	for i := 0; i < 5; i++ {
		if err := d.Deliver(ctx, s.ID(), []byte(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
	}
	for i := 0; i < 5; i++ {
		if got, want := string(receive(t, s)), fmt.Sprintf(`{"n":%d}`, i); got != want {
			t.Fatalf("message %d = %s, want %s", i, got, want)
		}
	}
}

func testIsolation(t *testing.T, factory DirectoryFactory) {
	d := factory(t, 10)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	defer func() { _ = d.Close(context.Background(), a.ID()) }()
	b, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	defer func() { _ = d.Close(context.Background(), b.ID()) }()

	if err := d.Deliver(ctx, a.ID(), []byte("for-a")); err != nil {
		t.Fatalf("deliver a: %v", err)
	}
	if got := string(receive(t, a)); got != "for-a" {
		t.Fatalf("a received %q", got)
	}

	select {
	case msg := <-b.Messages():
		t.Fatalf("session b received %q meant for a", msg)
	case <-time.After(200 * time.Millisecond):
	}
}

func testDeliverUnknown(t *testing.T, factory DirectoryFactory) {
	d := factory(t, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := d.Deliver(ctx, "does-not-exist", []byte("x"))
	if !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	ok, err := d.Lookup(ctx, "does-not-exist")
	if err != nil || ok {
		t.Fatalf("lookup of unknown session = %v, %v", ok, err)
	}
	if err := d.Close(ctx, "does-not-exist"); err != nil {
		t.Fatalf("closing unknown session: %v", err)
	}
}

// testDeliverFull never drains the session, so a bounded directory must start
// refusing within a small multiple of its capacity.
func testDeliverFull(t *testing.T, factory DirectoryFactory) {
	const capacity = 3
	d := factory(t, capacity)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = d.Close(context.Background(), s.ID()) }()

	var full bool
	for i := 0; i < 4*capacity; i++ {
		err := d.Deliver(ctx, s.ID(), []byte("x"))
		if errors.Is(err, sessions.ErrSessionFull) {
			full = true
			break
		}
		if err != nil {
			t.Fatalf("deliver %d: %v", i, err)
		}
		if i >= capacity {
			// give forwarding implementations a moment to settle
			time.Sleep(20 * time.Millisecond)
		}
	}
	if !full {
		t.Fatalf("expected ErrSessionFull within %d deliveries", 4*capacity)
	}

	// draining makes room again
	receive(t, s)
	deadline := time.Now().Add(3 * time.Second)
	for {
		err := d.Deliver(ctx, s.ID(), []byte("y"))
		if err == nil {
			break
		}
		if !errors.Is(err, sessions.ErrSessionFull) || time.Now().After(deadline) {
			t.Fatalf("deliver after drain: %v", err)
		}
		select {
		case <-s.Messages():
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func testClose(t *testing.T, factory DirectoryFactory) {
	d := factory(t, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := d.Open(ctx)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := d.Close(ctx, s.ID()); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case _, ok := <-s.Messages():
		if ok {
			// drain anything that raced in before close; the channel must still end
			for range s.Messages() {
			}
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("channel not closed after Close")
	}

	ok, err := d.Lookup(ctx, s.ID())
	if err != nil || ok {
		t.Fatalf("lookup after close = %v, %v", ok, err)
	}
	if err := d.Deliver(ctx, s.ID(), []byte("late")); !errors.Is(err, sessions.ErrSessionNotFound) {
		t.Fatalf("deliver after close: expected ErrSessionNotFound, got %v", err)
	}
	if err := d.Close(ctx, s.ID()); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func testConcurrentDeliverAndClose(t *testing.T, factory DirectoryFactory) {
	d := factory(t, 8)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		s, err := d.Open(ctx)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		wg.Add(3)
		go func() {
			defer wg.Done()
			for range s.Messages() {
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				err := d.Deliver(ctx, s.ID(), []byte("m"))
				if err != nil && !errors.Is(err, sessions.ErrSessionNotFound) && !errors.Is(err, sessions.ErrSessionFull) {
					t.Errorf("deliver: %v", err)
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			time.Sleep(10 * time.Millisecond)
			if err := d.Close(ctx, s.ID()); err != nil {
				t.Errorf("close: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(8 * time.Second):
		t.Fatal("concurrent deliver/close did not settle")
	}
}
