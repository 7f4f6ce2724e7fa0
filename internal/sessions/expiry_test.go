package sessions

import (
	"context"
	"testing"
	"time"
)

func TestIsIdle(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	timeout := 30 * time.Minute

	if isIdle(base, base.Add(timeout), timeout) {
		t.Fatal("session at the exact boundary should be kept")
	}
	if !isIdle(base, base.Add(timeout+time.Millisecond), timeout) {
		t.Fatal("session past the boundary should be idle")
	}
}

func TestSweepExpired(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	factory := newFakeFactory()
	events := &eventLog{}
	busy := map[string]bool{}
	store := NewStore(factory, DefaultConfig(),
		WithClock(clock.Now),
		WithObserver(events.observe),
		WithBusyFunc(func(id string) bool { return busy[id] }),
	)
	root := t.TempDir()

	stale, err := store.Create(context.Background(), "alice", Options{WorkspaceRoot: root})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	staleBusy, err := store.Create(context.Background(), "alice", Options{WorkspaceRoot: root})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	busy[staleBusy.ID] = true

	clock.Advance(25 * time.Minute)
	recent, err := store.Create(context.Background(), "alice", Options{WorkspaceRoot: root})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	clock.Advance(10 * time.Minute)
	removed := store.SweepExpired(clock.Now())
	if len(removed) != 1 || removed[0] != stale.ID {
		t.Fatalf("SweepExpired() = %v, want [%s]", removed, stale.ID)
	}
	if _, ok := store.Peek(stale.ID); ok {
		t.Fatal("stale session should be gone")
	}
	if _, ok := store.Peek(staleBusy.ID); !ok {
		t.Fatal("busy session should be kept")
	}
	if _, ok := store.Peek(recent.ID); !ok {
		t.Fatal("recent session should be kept")
	}
	if factory.closedCount(root) != 1 {
		t.Fatalf("closed = %d, want 1", factory.closedCount(root))
	}

	expired := events.ofType(EventExpired)
	if len(expired) != 1 || expired[0].Count != 1 {
		t.Fatalf("expected one batch expiry event, got %+v", expired)
	}

	if got := store.SweepExpired(clock.Now()); len(got) != 0 {
		t.Fatalf("second sweep removed %v", got)
	}
	if len(events.ofType(EventExpired)) != 1 {
		t.Fatal("empty sweep should not notify")
	}
}

func TestSweepExpiredBatchesEvent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	events := &eventLog{}
	store := NewStore(newFakeFactory(), Config{Timeout: time.Minute}, WithClock(clock.Now), WithObserver(events.observe))
	root := t.TempDir()

	for i := 0; i < 3; i++ {
		if _, err := store.Create(context.Background(), "alice", Options{WorkspaceRoot: root}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}
	clock.Advance(2 * time.Minute)

	removed := store.SweepExpired(clock.Now())
	if len(removed) != 3 {
		t.Fatalf("removed %d sessions, want 3", len(removed))
	}
	expired := events.ofType(EventExpired)
	if len(expired) != 1 || len(expired[0].SessionIDs) != 3 {
		t.Fatalf("expected a single event listing 3 ids, got %+v", expired)
	}
}

func TestTouchDefersExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := NewStore(newFakeFactory(), Config{Timeout: time.Minute}, WithClock(clock.Now))

	sess, err := store.Create(context.Background(), "alice", Options{WorkspaceRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	clock.Advance(50 * time.Second)
	if !store.Touch(sess.ID) {
		t.Fatal("Touch() = false")
	}
	clock.Advance(50 * time.Second)
	if removed := store.SweepExpired(clock.Now()); len(removed) != 0 {
		t.Fatalf("touched session was swept: %v", removed)
	}
}
