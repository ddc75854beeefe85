package relay

import (
	"context"
	"errors"
	"strings"
	"testing"

	"telerelay/internal/tenant"
	logx "telerelay/pkg/logx"
)

func TestRunCycleFetchesOncePerCredential(t *testing.T) {
	t.Parallel()
	store := newMemStore(
		&tenant.Tenant{ID: "guild-a", Credential: "tok", Target: "chan-a"},
		&tenant.Tenant{ID: "guild-b", Credential: "tok", Target: "chan-b"},
		&tenant.Tenant{ID: "guild-c", Credential: "other", Target: "chan-c"},
	)
	poller := newScriptPoller()
	send := newCaptureSender()
	e := NewEngine(store, poller, send, logx.Nop())

	e.RunCycle(context.Background())

	if n := poller.fetchCount("tok"); n != 1 {
		t.Fatalf("shared credential fetched %d times, want 1", n)
	}
	if n := poller.fetchCount("other"); n != 1 {
		t.Fatalf("second credential fetched %d times, want 1", n)
	}
}

func TestRunCycleAdvancesCursorAfterRouting(t *testing.T) {
	t.Parallel()
	store := newMemStore(&tenant.Tenant{
		ID: "guild-a", Credential: "tok", Target: "chan-a",
		KnownChats: []string{"News"}, SubscribedChats: []string{"News"},
	})
	poller := newScriptPoller()
	poller.serve("tok", 42,
		RawUpdate{Position: 41, Group: &GroupMessage{ChatTitle: "News", FirstName: "Ada", Text: "hi"}},
		RawUpdate{Position: 42}, // unsupported shape still acknowledged
	)
	send := newCaptureSender()
	e := NewEngine(store, poller, send, logx.Nop())

	e.RunCycle(context.Background())
	if got := poller.lastCursor("tok"); got != 0 {
		t.Fatalf("first cycle cursor = %d, want 0", got)
	}
	if n := len(send.messages()); n != 1 {
		t.Fatalf("delivered %d, want 1", n)
	}

	poller.serve("tok", 42)
	e.RunCycle(context.Background())
	if got := poller.lastCursor("tok"); got != 42 {
		t.Fatalf("second cycle cursor = %d, want 42", got)
	}
}

func TestRunCycleTransientFailureKeepsCursor(t *testing.T) {
	t.Parallel()
	store := newMemStore(&tenant.Tenant{
		ID: "guild-a", Credential: "tok", Target: "chan-a",
		KnownChats: []string{"News"}, SubscribedChats: []string{"News"},
	})
	poller := newScriptPoller()
	poller.serve("tok", 10,
		RawUpdate{Position: 10, Group: &GroupMessage{ChatTitle: "News", FirstName: "Ada", Text: "hi"}})
	send := newCaptureSender()
	e := NewEngine(store, poller, send, logx.Nop())

	e.RunCycle(context.Background())

	poller.fail("tok", Transient(errors.New("connection reset")))
	e.RunCycle(context.Background())
	if _, flagged := e.CredentialIssue("tok"); flagged {
		t.Fatal("transient failure must not flag the credential")
	}

	// Recovery retries with the cursor from the last good cycle.
	poller.serve("tok", 10)
	e.RunCycle(context.Background())
	if got := poller.lastCursor("tok"); got != 10 {
		t.Fatalf("cursor after recovery = %d, want 10", got)
	}
}

func TestRunCycleFlagsUnauthorizedCredential(t *testing.T) {
	t.Parallel()
	store := newMemStore(
		&tenant.Tenant{ID: "guild-a", Credential: "bad", Target: "chan-a"},
		&tenant.Tenant{ID: "guild-b", Credential: "good", Target: "chan-b",
			KnownChats: []string{"News"}, SubscribedChats: []string{"News"}},
	)
	poller := newScriptPoller()
	poller.fail("bad", Unauthorized(errors.New("telegram: Unauthorized (401)")))
	poller.serve("good", 5,
		RawUpdate{Position: 5, Group: &GroupMessage{ChatTitle: "News", FirstName: "Ada", Text: "hi"}})
	send := newCaptureSender()
	e := NewEngine(store, poller, send, logx.Nop())

	e.RunCycle(context.Background())

	if _, flagged := e.CredentialIssue("bad"); !flagged {
		t.Fatal("unauthorized credential must be flagged")
	}
	if _, flagged := e.CredentialIssue("good"); flagged {
		t.Fatal("healthy credential must not be flagged")
	}
	// The bad credential never blocks the good one.
	if n := len(send.messages()); n != 1 {
		t.Fatalf("delivered %d, want 1", n)
	}

	// Flag clears once the upstream accepts the credential again.
	poller.serve("bad", 0)
	e.RunCycle(context.Background())
	if _, flagged := e.CredentialIssue("bad"); flagged {
		t.Fatal("flag must clear after a successful poll")
	}
}

func TestRunCyclePrunesStaleCredentialState(t *testing.T) {
	t.Parallel()
	store := newMemStore(&tenant.Tenant{ID: "guild-a", Credential: "tok", Target: "chan-a"})
	poller := newScriptPoller()
	poller.fail("tok", Unauthorized(errors.New("telegram: Unauthorized (401)")))
	e := NewEngine(store, poller, newCaptureSender(), logx.Nop())

	e.RunCycle(context.Background())
	if _, flagged := e.CredentialIssue("tok"); !flagged {
		t.Fatal("expected flagged credential")
	}

	// Unlink: the flag disappears with the tenant.
	if err := store.Delete(context.Background(), "guild-a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	e.RunCycle(context.Background())
	if _, flagged := e.CredentialIssue("tok"); flagged {
		t.Fatal("flag must be pruned once no tenant references the credential")
	}
}

// End-to-end discovery then delivery across cycles.
func TestDiscoverSubscribeDeliver(t *testing.T) {
	t.Parallel()
	store := newMemStore(&tenant.Tenant{ID: "guild-a", Credential: "tok", Target: "chan-a"})
	poller := newScriptPoller()
	send := newCaptureSender()
	e := NewEngine(store, poller, send, logx.Nop())

	// Cycle 1: an unknown chat posts. Discovered, nothing delivered.
	poller.serve("tok", 100,
		RawUpdate{Position: 100, Group: &GroupMessage{ChatTitle: "News", FirstName: "Ada", Text: "first"}})
	e.RunCycle(context.Background())

	if n := len(send.messages()); n != 0 {
		t.Fatalf("nothing should be delivered before subscribing, sent %d", n)
	}
	got, err := store.Get(context.Background(), "guild-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Knows("News") {
		t.Fatalf("chat not discovered, known = %v", got.KnownChats)
	}

	// Operator subscribes.
	err = store.Update(context.Background(), "guild-a", func(cur *tenant.Tenant) error {
		_, terr := cur.ToggleSubscription("News")
		return terr
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Cycle 2: a signed channel post in the subscribed chat is delivered.
	poller.serve("tok", 101,
		RawUpdate{Position: 101, Channel: &ChannelPost{ChatTitle: "News", Signature: "Editor", Text: "update"}})
	e.RunCycle(context.Background())

	msgs := send.messages()
	if len(msgs) != 1 {
		t.Fatalf("delivered %d, want 1", len(msgs))
	}
	if msgs[0].Target != "chan-a" {
		t.Fatalf("delivered to %s, want chan-a", msgs[0].Target)
	}
	if !strings.Contains(msgs[0].Text, "Editor") || !strings.Contains(msgs[0].Text, "update") {
		t.Fatalf("delivered text %q missing signature or body", msgs[0].Text)
	}

	// Cycle 3: cursor acknowledged everything from cycle 2.
	poller.serve("tok", 101)
	e.RunCycle(context.Background())
	if got := poller.lastCursor("tok"); got != 101 {
		t.Fatalf("cursor = %d, want 101", got)
	}
}

func TestRunCycleNonReentrant(t *testing.T) {
	t.Parallel()
	store := newMemStore(&tenant.Tenant{ID: "guild-a", Credential: "tok", Target: "chan-a"})
	poller := newScriptPoller()
	e := NewEngine(store, poller, newCaptureSender(), logx.Nop())

	// Simulate an in-flight cycle holding the latch.
	if !e.running.CompareAndSwap(false, true) {
		t.Fatal("latch should start free")
	}
	e.RunCycle(context.Background())
	if n := poller.fetchCount("tok"); n != 0 {
		t.Fatalf("overlapping cycle must be skipped, fetched %d", n)
	}
	e.running.Store(false)

	e.RunCycle(context.Background())
	if n := poller.fetchCount("tok"); n != 1 {
		t.Fatalf("fetched %d, want 1 after latch release", n)
	}
}
