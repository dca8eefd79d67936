package approval

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Channel correlates open requests with the single verdict each may receive.
type Channel struct {
	mu       sync.RWMutex
	pending  map[string]*pendingRequest
	notifyCh chan struct{}
	closed   bool
}

type pendingRequest struct {
	req      Request
	resultCh chan Verdict
}

func NewChannel() *Channel {
	return &Channel{
		pending:  make(map[string]*pendingRequest),
		notifyCh: make(chan struct{}, 100),
	}
}

// Open registers req and returns the channel its verdict will arrive on.
// The returned channel is buffered so Resolve never blocks. It is closed
// without a value when the Channel shuts down first.
func (c *Channel) Open(req Request) <-chan Verdict {
	resultCh := make(chan Verdict, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(resultCh)
		return resultCh
	}
	c.pending[req.ID] = &pendingRequest{req: req, resultCh: resultCh}
	c.mu.Unlock()

	c.notifyWatchers()
	log.Debug().Str("id", req.ID).Str("direction", string(req.Direction)).Msg("request opened")
	return resultCh
}

// Resolve delivers v to the request with the given id. Unknown, expired or
// already resolved ids return ErrUnknownRequest and touch nothing.
func (c *Channel) Resolve(id string, v Verdict) error {
	c.mu.Lock()
	p, exists := c.pending[id]
	if !exists {
		c.mu.Unlock()
		log.Debug().Str("id", id).Str("verdict", string(v)).Msg("verdict for unknown request ignored")
		return ErrUnknownRequest
	}
	delete(c.pending, id)
	// Sent under the lock: once Cancel reports false the verdict is buffered.
	p.resultCh <- v
	c.mu.Unlock()

	c.notifyWatchers()
	log.Info().Str("id", id).Str("verdict", string(v)).Msg("verdict delivered")
	return nil
}

// Cancel deregisters id. It reports false when a verdict won the race and is
// already sitting in the result channel, or when Close closed the channel.
func (c *Channel) Cancel(id string) bool {
	c.mu.Lock()
	_, exists := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()

	if exists {
		c.notifyWatchers()
	}
	return exists
}

func (c *Channel) Pending() []Request {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pending := make([]Request, 0, len(c.pending))
	for _, p := range c.pending {
		pending = append(pending, p.req)
	}
	return pending
}

func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

func (c *Channel) NotifyChannel() <-chan struct{} {
	return c.notifyCh
}

// Close drops every open request and closes its result channel, so waiters
// resolve as denied right away.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	for id, p := range c.pending {
		close(p.resultCh)
		delete(c.pending, id)
	}
	close(c.notifyCh)
	return nil
}

func (c *Channel) notifyWatchers() {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.notifyCh <- struct{}{}:
	default:
	}
}
