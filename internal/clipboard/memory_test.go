package clipboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryPublishesChanges(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	m := NewMemory(4, func() time.Time { return at })

	require.NoError(t, m.WriteAs("com.example.app", "Example", Content{Text: "hi"}))

	select {
	case ch := <-m.Changes():
		require.Equal(t, "com.example.app", ch.ActorID)
		require.Equal(t, "Example", ch.ActorLabel)
		require.Equal(t, at, ch.At)
	default:
		t.Fatal("expected change notification")
	}

	c, err := m.Read()
	require.NoError(t, err)
	require.Equal(t, "hi", c.Text)
}

func TestMemoryHold(t *testing.T) {
	m := NewMemory(4, nil)
	release := m.Hold()

	_, err := m.Read()
	require.ErrorIs(t, err, ErrLocked)
	require.ErrorIs(t, m.Write(Content{Text: "x"}), ErrLocked)

	release()
	release()

	_, err = m.Read()
	require.NoError(t, err)
}

func TestCaptureWaitsForRelease(t *testing.T) {
	m := NewMemory(4, nil)
	require.NoError(t, m.Write(Content{Text: "payload"}))

	release := m.Hold()
	time.AfterFunc(30*time.Millisecond, release)

	s := Capture(m, CaptureOptions{MaxAttempts: 50, RetryDelay: 5 * time.Millisecond, PreviewMaxChars: 100})
	require.Equal(t, KindText, s.Kind)
	require.Equal(t, "payload", s.Text)
}

func TestRestore(t *testing.T) {
	m := NewMemory(8, nil)

	require.NoError(t, Restore(m, Snapshot{Kind: KindText, Text: "prior"}))
	c, _ := m.Read()
	require.Equal(t, "prior", c.Text)

	require.NoError(t, Restore(m, Snapshot{Kind: KindUnsupported}))
	c, _ = m.Read()
	require.True(t, c.IsEmpty())
}

func TestWithRetryStopsOnOtherErrors(t *testing.T) {
	calls := 0
	err := WithRetry(5, time.Millisecond, func() error {
		calls++
		return errTest
	})
	require.ErrorIs(t, err, errTest)
	require.Equal(t, 1, calls)
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "boom" }
