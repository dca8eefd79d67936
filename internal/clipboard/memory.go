package clipboard

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Memory is an in-process clipboard. Every write publishes a Change the way
// an OS clipboard listener would.
type Memory struct {
	mu      sync.Mutex
	content Content
	held    int
	changes chan Change
	now     func() time.Time
}

func NewMemory(buffer int, now func() time.Time) *Memory {
	if buffer <= 0 {
		buffer = 64
	}
	if now == nil {
		now = time.Now
	}
	return &Memory{
		changes: make(chan Change, buffer),
		now:     now,
	}
}

func (m *Memory) Read() (Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held > 0 {
		return Content{}, ErrLocked
	}
	return cloneContent(m.content), nil
}

func (m *Memory) Write(c Content) error {
	return m.WriteAs("", "", c)
}

// WriteAs writes on behalf of an identified actor.
func (m *Memory) WriteAs(actorID, actorLabel string, c Content) error {
	m.mu.Lock()
	if m.held > 0 {
		m.mu.Unlock()
		return ErrLocked
	}
	m.content = cloneContent(c)
	m.mu.Unlock()

	m.publish(Change{ActorID: actorID, ActorLabel: actorLabel, At: m.now()})
	return nil
}

func (m *Memory) Clear() error {
	return m.Write(Content{})
}

// Hold simulates another owner keeping the clipboard open until release.
func (m *Memory) Hold() (release func()) {
	m.mu.Lock()
	m.held++
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.held--
			m.mu.Unlock()
		})
	}
}

func (m *Memory) Changes() <-chan Change {
	return m.changes
}

func (m *Memory) publish(ch Change) {
	select {
	case m.changes <- ch:
	default:
		log.Warn().Str("actor", ch.ActorID).Msg("clipboard change dropped, listener is behind")
	}
}

func cloneContent(c Content) Content {
	return Content{
		Text:    c.Text,
		Files:   append([]string(nil), c.Files...),
		Formats: append([]string(nil), c.Formats...),
	}
}
