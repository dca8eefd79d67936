package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/metrics"
	"github.com/rs/zerolog/log"
)

const DefaultQueueSize = 256

type LoggerOptions struct {
	QueueSize int
	Now       func() time.Time
	Metrics   *metrics.Collector
}

// Logger records history without blocking its callers. Entries are written
// by a single goroutine in the order Log was called; when the queue is full
// the entry is dropped.
type Logger struct {
	store   Store
	queue   chan Entry
	done    chan struct{}
	now     func() time.Time
	metrics *metrics.Collector

	mu     sync.RWMutex
	closed bool
}

func NewLogger(store Store, opts LoggerOptions) *Logger {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Logger{
		store:   store,
		queue:   make(chan Entry, opts.QueueSize),
		done:    make(chan struct{}),
		now:     opts.Now,
		metrics: opts.Metrics,
	}
	go l.run()
	return l
}

func (l *Logger) Log(action Action, decision Decision, sample, note string) {
	if l == nil {
		return
	}

	e := Entry{
		Timestamp: l.now().UTC(),
		Action:    action,
		Decision:  decision,
		Note:      note,
	}
	if strings.TrimSpace(sample) != "" {
		e.Sample = truncateSample(sample)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		log.Warn().Str("action", string(action)).Str("decision", string(decision)).Msg("history logger closed, entry dropped")
		return
	}

	select {
	case l.queue <- e:
	default:
		l.metrics.IncHistoryDropped()
		log.Warn().Str("action", string(action)).Str("decision", string(decision)).Msg("history queue full, entry dropped")
	}
}

func (l *Logger) Recent(ctx context.Context, n int) ([]Entry, error) {
	return l.store.Recent(ctx, n)
}

// Close stops accepting entries, waits for the queue to drain and closes the
// store.
func (l *Logger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	<-l.done
	return l.store.Close()
}

func (l *Logger) run() {
	defer close(l.done)

	for e := range l.queue {
		if err := l.store.Append(context.Background(), e); err != nil {
			log.Error().Err(err).Str("action", string(e.Action)).Msg("failed to write history entry")
		}
	}
}
