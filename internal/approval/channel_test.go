package approval

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newRequest(id string) Request {
	return Request{
		ID:        id,
		Direction: DirectionWrite,
		ActorID:   "com.example.app",
		CreatedAt: time.Now(),
	}
}

func TestOpenAndResolve(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	resultCh := ch.Open(newRequest("req-1"))

	pending := ch.Pending()
	require.Len(t, pending, 1)
	require.Equal(t, "req-1", pending[0].ID)

	require.NoError(t, ch.Resolve("req-1", VerdictAllow))

	select {
	case v := <-resultCh:
		require.Equal(t, VerdictAllow, v)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for verdict")
	}
	require.Zero(t, ch.Len())
}

func TestSecondVerdictIsIgnored(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	resultCh := ch.Open(newRequest("req-1"))

	require.NoError(t, ch.Resolve("req-1", VerdictAllow))
	require.ErrorIs(t, ch.Resolve("req-1", VerdictDeny), ErrUnknownRequest)

	require.Equal(t, VerdictAllow, <-resultCh)
	select {
	case v := <-resultCh:
		t.Fatalf("unexpected second verdict %s", v)
	default:
	}
}

func TestResolveUnknownDoesNotTouchOthers(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	resultCh := ch.Open(newRequest("req-1"))

	require.ErrorIs(t, ch.Resolve("nonexistent-id", VerdictAllow), ErrUnknownRequest)
	require.Equal(t, 1, ch.Len())

	select {
	case v := <-resultCh:
		t.Fatalf("request resolved by unrelated verdict: %s", v)
	default:
	}
}

func TestCancel(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	ch.Open(newRequest("req-1"))
	require.True(t, ch.Cancel("req-1"))
	require.False(t, ch.Cancel("req-1"))
	require.ErrorIs(t, ch.Resolve("req-1", VerdictAllow), ErrUnknownRequest)
}

func TestCancelAfterResolveKeepsVerdict(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	resultCh := ch.Open(newRequest("req-1"))
	require.NoError(t, ch.Resolve("req-1", VerdictDeny))

	require.False(t, ch.Cancel("req-1"))
	require.Equal(t, VerdictDeny, <-resultCh)
}

func TestConcurrentOpenResolve(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	const numRequests = 50
	results := make([]<-chan Verdict, numRequests)
	for i := 0; i < numRequests; i++ {
		results[i] = ch.Open(newRequest(fmt.Sprintf("req-%d", i)))
	}

	var wg sync.WaitGroup
	wg.Add(numRequests * 2)
	for i := 0; i < numRequests; i++ {
		id := fmt.Sprintf("req-%d", i)
		verdict := VerdictAllow
		if i%2 == 1 {
			verdict = VerdictDeny
		}
		// Two racing deliveries per id; exactly one may win.
		go func() { defer wg.Done(); _ = ch.Resolve(id, verdict) }()
		go func() { defer wg.Done(); _ = ch.Resolve(id, verdict) }()
	}
	wg.Wait()

	for i, resultCh := range results {
		want := VerdictAllow
		if i%2 == 1 {
			want = VerdictDeny
		}
		require.Equal(t, want, <-resultCh)
		select {
		case <-resultCh:
			t.Fatalf("request %d received two verdicts", i)
		default:
		}
	}
	require.Zero(t, ch.Len())
}

func TestNotifyOnOpen(t *testing.T) {
	ch := NewChannel()
	defer ch.Close()

	ch.Open(newRequest("req-1"))

	select {
	case <-ch.NotifyChannel():
	case <-time.After(time.Second):
		t.Fatal("expected notification")
	}
}

func TestCloseReleasesWaiters(t *testing.T) {
	ch := NewChannel()
	resultCh := ch.Open(newRequest("req-1"))

	require.NoError(t, ch.Close())

	select {
	case v, ok := <-resultCh:
		require.False(t, ok, "closed waiter received verdict %s", v)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by Close")
	}
	require.False(t, ch.Cancel("req-1"))
	require.ErrorIs(t, ch.Resolve("req-1", VerdictAllow), ErrUnknownRequest)

	_, ok := <-ch.Open(newRequest("req-2"))
	require.False(t, ok, "Open after Close must return a closed channel")
	require.Zero(t, ch.Len())
}
