package mediation

import (
	"context"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
	"github.com/dagbolade/clipboard-guardian/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout  = 2500 * time.Millisecond
	DefaultCacheTTL = 1500 * time.Millisecond
)

type Config struct {
	Timeout  time.Duration
	CacheTTL time.Duration
	Now      func() time.Time
}

// Core turns an access attempt into exactly one verdict. Concurrent calls
// are independent: two attempts by the same actor that overlap each get their
// own request and prompt.
type Core struct {
	channel  *approval.Channel
	cache    *approval.Cache
	prompter Prompter
	timeout  time.Duration
	now      func() time.Time
	metrics  *metrics.Collector
}

func New(cfg Config, channel *approval.Channel, prompter Prompter, m *metrics.Collector) *Core {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Core{
		channel:  channel,
		cache:    approval.NewCache(cfg.CacheTTL, cfg.Now),
		prompter: prompter,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
		metrics:  m,
	}
}

func (c *Core) Channel() *approval.Channel {
	return c.channel
}

func (c *Core) Timeout() time.Duration {
	return c.timeout
}

// Mediate blocks the calling goroutine until a human verdict arrives, the
// timeout fires or ctx ends. Anything other than an explicit allow is a deny.
func (c *Core) Mediate(ctx context.Context, att Attempt) Outcome {
	start := time.Now()
	key := approval.NewCacheKey(att.ActorID, att.Direction)

	if v, ok := c.cache.Lookup(key); ok {
		out := Outcome{Verdict: v, Resolution: ResolutionCached}
		c.observe(att, out, start)
		return out
	}

	req := approval.Request{
		ID:         uuid.New().String(),
		Direction:  att.Direction,
		ActorID:    att.ActorID,
		ActorLabel: att.ActorLabel,
		CreatedAt:  c.now(),
	}
	if att.Snapshot != nil {
		req.Preview = att.Snapshot.Preview
	}

	resultCh := c.channel.Open(req)

	log.Info().
		Str("id", req.ID).
		Str("actor", key.ActorID).
		Str("direction", string(att.Direction)).
		Msg("access request pending")

	waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	promptErr := make(chan error, 1)
	go func() {
		promptErr <- c.prompter.Prompt(waitCtx, req)
	}()

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	for {
		select {
		case err := <-promptErr:
			promptErr = nil
			if err != nil {
				log.Warn().Err(err).Str("id", req.ID).Msg("prompt could not be shown")
				return c.expire(key, req, resultCh, ResolutionPromptFailed, att, start)
			}

		case v, ok := <-resultCh:
			if !ok {
				return c.finish(key, req, approval.VerdictDeny, ResolutionCanceled, att, start)
			}
			return c.finish(key, req, v, ResolutionUser, att, start)

		case <-deadline.C:
			return c.expire(key, req, resultCh, ResolutionTimeout, att, start)

		case <-ctx.Done():
			return c.expire(key, req, resultCh, ResolutionCanceled, att, start)
		}
	}
}

// expire withdraws the request. If a verdict slipped in first it is honoured
// so the request still ends in exactly one state. Never blocks.
func (c *Core) expire(key approval.CacheKey, req approval.Request, resultCh <-chan approval.Verdict, r Resolution, att Attempt, start time.Time) Outcome {
	if !c.channel.Cancel(req.ID) {
		select {
		case v, ok := <-resultCh:
			if ok {
				return c.finish(key, req, v, ResolutionUser, att, start)
			}
			r = ResolutionCanceled
		default:
		}
	}
	return c.finish(key, req, approval.VerdictDeny, r, att, start)
}

func (c *Core) finish(key approval.CacheKey, req approval.Request, v approval.Verdict, r Resolution, att Attempt, start time.Time) Outcome {
	if v != approval.VerdictAllow {
		v = approval.VerdictDeny
	}
	c.cache.Store(key, v)

	out := Outcome{RequestID: req.ID, Verdict: v, Resolution: r}

	log.Info().
		Str("id", req.ID).
		Str("actor", key.ActorID).
		Str("direction", string(att.Direction)).
		Str("verdict", string(v)).
		Str("resolution", string(r)).
		Dur("elapsed", time.Since(start)).
		Msg("access request resolved")

	c.observe(att, out, start)
	return out
}

func (c *Core) observe(att Attempt, out Outcome, start time.Time) {
	c.metrics.ObserveOutcome(string(att.Direction), string(out.Verdict), string(out.Resolution), time.Since(start))
}
