package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	entries []Entry
	block   chan struct{}
	fail    bool
	closed  bool
}

func (s *memStore) Append(_ context.Context, e Entry) error {
	if s.block != nil {
		<-s.block
	}
	if s.fail {
		return errors.New("disk full")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

func (s *memStore) Recent(_ context.Context, n int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	return append([]Entry(nil), s.entries[len(s.entries)-n:]...), nil
}

func (s *memStore) Close() error {
	s.closed = true
	return nil
}

func TestLoggerPreservesOrder(t *testing.T) {
	store := &memStore{}
	logger := NewLogger(store, LoggerOptions{})

	for i := 0; i < 50; i++ {
		logger.Log(ActionCopy, DecisionAllowed, "", fmt.Sprintf("n%d", i))
	}
	require.NoError(t, logger.Close())
	require.True(t, store.closed)

	require.Len(t, store.entries, 50)
	for i, e := range store.entries {
		require.Equal(t, fmt.Sprintf("n%d", i), e.Note)
	}
}

func TestLoggerTruncatesSample(t *testing.T) {
	store := &memStore{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := NewLogger(store, LoggerOptions{Now: func() time.Time { return now }})

	logger.Log(ActionCopy, DecisionPending, strings.Repeat("a", 500), "Clipboard change detected")
	logger.Log(ActionToggle, DecisionEnabled, "   ", "Protection toggled by user")
	require.NoError(t, logger.Close())

	require.Len(t, store.entries, 2)
	require.Len(t, store.entries[0].Sample, MaxSampleRunes)
	require.Equal(t, now, store.entries[0].Timestamp)
	require.Empty(t, store.entries[1].Sample)
}

func TestLoggerDropsWhenFull(t *testing.T) {
	store := &memStore{block: make(chan struct{})}
	m := metrics.New()
	logger := NewLogger(store, LoggerOptions{QueueSize: 2, Metrics: m})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			logger.Log(ActionCopy, DecisionPending, "", "burst")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log blocked on a full queue")
	}

	close(store.block)
	require.NoError(t, logger.Close())

	require.Less(t, len(store.entries), 10)
	require.Equal(t, float64(10-len(store.entries)), testutil.ToFloat64(m.HistoryDropped()))
}

func TestLoggerSwallowsStoreErrors(t *testing.T) {
	store := &memStore{fail: true}
	logger := NewLogger(store, LoggerOptions{})

	logger.Log(ActionError, DecisionFailed, "", "write failed")
	require.NoError(t, logger.Close())
	require.Empty(t, store.entries)
}

func TestLoggerLogAfterClose(t *testing.T) {
	logger := NewLogger(&memStore{}, LoggerOptions{})
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	require.NotPanics(t, func() {
		logger.Log(ActionCopy, DecisionAllowed, "", "late")
	})
}

func TestNilLogger(t *testing.T) {
	var logger *Logger
	require.NotPanics(t, func() {
		logger.Log(ActionCopy, DecisionAllowed, "", "nil")
	})
}
