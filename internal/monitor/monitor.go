// Package monitor applies mediation verdicts to the clipboard itself.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
	"github.com/dagbolade/clipboard-guardian/internal/audit"
	"github.com/dagbolade/clipboard-guardian/internal/clipboard"
	"github.com/dagbolade/clipboard-guardian/internal/mediation"
	"github.com/dagbolade/clipboard-guardian/internal/metrics"
	"github.com/dagbolade/clipboard-guardian/internal/policy"
	"github.com/dagbolade/clipboard-guardian/internal/protection"
	"github.com/dagbolade/clipboard-guardian/internal/suppress"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSuppress = 750 * time.Millisecond

	lastApprovedNote = "\n\n(showing last approved content)"
)

// Disposition says what HandleChange did with a notification.
type Disposition string

const (
	DispositionDisabled   Disposition = "disabled"
	DispositionSuppressed Disposition = "suppressed"
	DispositionExempt     Disposition = "exempt"
	DispositionEmpty      Disposition = "empty"
	DispositionMediated   Disposition = "mediated"
)

type Mediator interface {
	Mediate(ctx context.Context, att mediation.Attempt) mediation.Outcome
}

type Config struct {
	Suppress time.Duration
	Capture  clipboard.CaptureOptions
}

type Deps struct {
	Clipboard clipboard.Clipboard
	Window    *suppress.Window
	Core      Mediator
	Policy    policy.Evaluator
	State     *protection.State
	History   *audit.Logger
	Metrics   *metrics.Collector
}

type Monitor struct {
	cb      clipboard.Clipboard
	window  *suppress.Window
	core    Mediator
	policy  policy.Evaluator
	state   *protection.State
	history *audit.Logger
	metrics *metrics.Collector

	suppressFor time.Duration
	capture     clipboard.CaptureOptions

	mu           sync.Mutex
	lastApproved *clipboard.Snapshot
}

func New(cfg Config, deps Deps) *Monitor {
	if cfg.Suppress <= 0 {
		cfg.Suppress = DefaultSuppress
	}
	if cfg.Capture.MaxAttempts <= 0 {
		cfg.Capture = clipboard.DefaultCaptureOptions()
	}
	if deps.Window == nil {
		deps.Window = suppress.New(nil)
	}

	return &Monitor{
		cb:          deps.Clipboard,
		window:      deps.Window,
		core:        deps.Core,
		policy:      deps.Policy,
		state:       deps.State,
		history:     deps.History,
		metrics:     deps.Metrics,
		suppressFor: cfg.Suppress,
		capture:     cfg.Capture,
	}
}

// Prime records the current clipboard as the last approved content. Content
// present before the guardian started is trusted.
func (m *Monitor) Prime() {
	snap := clipboard.Capture(m.cb, m.capture)
	if snap.Restorable() {
		m.setLastApproved(snap)
	}
}

// Run handles change notifications one at a time until ctx ends or the
// notifier closes.
func (m *Monitor) Run(ctx context.Context, n clipboard.Notifier) {
	m.mu.Lock()
	primed := m.lastApproved != nil
	m.mu.Unlock()
	if !primed {
		m.Prime()
	}

	changes := n.Changes()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			m.HandleChange(ctx, ev)
		}
	}
}

// HandleChange deals with a foreign write that has already landed. The
// content is pulled off the clipboard while the user decides, then either
// put back or replaced by the last approved content.
func (m *Monitor) HandleChange(ctx context.Context, ev clipboard.Change) (Disposition, mediation.Outcome) {
	if !m.enabled() {
		return m.dispose(DispositionDisabled), mediation.Outcome{}
	}
	if m.window.IsSuppressed(ev.At) {
		return m.dispose(DispositionSuppressed), mediation.Outcome{}
	}
	if m.exempt(ctx, ev.ActorID, approval.DirectionWrite) {
		return m.dispose(DispositionExempt), mediation.Outcome{}
	}

	snap := clipboard.Capture(m.cb, m.capture)
	if snap.Kind == clipboard.KindEmpty {
		return m.dispose(DispositionEmpty), mediation.Outcome{}
	}
	m.dispose(DispositionMediated)

	// Unsupported content cannot be written back, so it stays in place.
	canSave := snap.Restorable()
	if canSave {
		m.window.Extend(m.suppressFor)
		if err := clipboard.ClearWithRetry(m.cb); err != nil {
			m.fail("clear clipboard before prompt", err)
		}
	}

	m.history.Log(audit.ActionCopy, audit.DecisionPending, snap.Preview, "Clipboard change detected")

	out := m.core.Mediate(ctx, mediation.Attempt{
		Direction:  approval.DirectionWrite,
		ActorID:    ev.ActorID,
		ActorLabel: ev.ActorLabel,
		Snapshot:   &snap,
	})

	if out.Allowed() {
		if canSave {
			m.window.Extend(m.suppressFor)
			if err := clipboard.Restore(m.cb, snap); err != nil {
				m.fail("restore approved content", err)
			}
			m.setLastApproved(snap)
		}
		m.history.Log(audit.ActionCopy, audit.DecisionAllowed, snap.Preview, "Clipboard updated by user")
		return DispositionMediated, out
	}

	m.revert()
	m.history.Log(audit.ActionCopy, audit.DecisionBlocked, snap.Preview, "Clipboard change reverted")
	return DispositionMediated, out
}

// HandleWrite mediates a write before it reaches the clipboard.
func (m *Monitor) HandleWrite(ctx context.Context, actorID, actorLabel string, c clipboard.Content) (mediation.Outcome, error) {
	if r, bypass := m.bypass(ctx, actorID, approval.DirectionWrite); bypass {
		m.window.Extend(m.suppressFor)
		return mediation.Outcome{Verdict: approval.VerdictAllow, Resolution: r}, clipboard.WriteWithRetry(m.cb, c)
	}

	snap := clipboard.Classify(c, m.capture.PreviewMaxChars)
	m.history.Log(audit.ActionCopy, audit.DecisionPending, snap.Preview, "Clipboard write requested by "+actorName(actorID, actorLabel))

	out := m.core.Mediate(ctx, mediation.Attempt{
		Direction:  approval.DirectionWrite,
		ActorID:    actorID,
		ActorLabel: actorLabel,
		Snapshot:   &snap,
	})

	if !out.Allowed() {
		m.history.Log(audit.ActionCopy, audit.DecisionBlocked, snap.Preview, "Clipboard write blocked")
		return out, nil
	}

	m.window.Extend(m.suppressFor)
	if err := clipboard.WriteWithRetry(m.cb, c); err != nil {
		m.fail("write approved content", err)
		return out, err
	}
	if snap.Restorable() {
		m.setLastApproved(snap)
	}
	m.history.Log(audit.ActionCopy, audit.DecisionAllowed, snap.Preview, "Clipboard updated by user")
	return out, nil
}

// HandleRead mediates a read. When the clipboard holds nothing the guardian
// can show, the last approved content is offered instead and put back on
// allow.
func (m *Monitor) HandleRead(ctx context.Context, actorID, actorLabel string) (clipboard.Content, mediation.Outcome) {
	snap := clipboard.Capture(m.cb, m.capture)

	if r, bypass := m.bypass(ctx, actorID, approval.DirectionRead); bypass {
		return snap.Content(), mediation.Outcome{Verdict: approval.VerdictAllow, Resolution: r}
	}

	served := snap
	last := m.LastApproved()
	fallback := (snap.Kind == clipboard.KindEmpty || snap.Kind == clipboard.KindUnsupported) && last != nil
	if fallback {
		served = *last
		served.Preview = last.Preview + lastApprovedNote
	}

	m.history.Log(audit.ActionPaste, audit.DecisionPending, served.Preview, "Clipboard read requested by "+actorName(actorID, actorLabel))

	out := m.core.Mediate(ctx, mediation.Attempt{
		Direction:  approval.DirectionRead,
		ActorID:    actorID,
		ActorLabel: actorLabel,
		Snapshot:   &served,
	})

	if !out.Allowed() {
		m.history.Log(audit.ActionPaste, audit.DecisionBlocked, served.Preview, "Paste denied by user")
		return clipboard.Content{}, out
	}

	if fallback {
		m.window.Extend(m.suppressFor)
		if err := clipboard.Restore(m.cb, *last); err != nil {
			m.fail("restore last approved content", err)
		}
	}
	m.history.Log(audit.ActionPaste, audit.DecisionAllowed, served.Preview, "Paste permitted by user")
	return served.Content(), out
}

func (m *Monitor) LastApproved() *clipboard.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastApproved == nil {
		return nil
	}
	s := *m.lastApproved
	return &s
}

func (m *Monitor) setLastApproved(s clipboard.Snapshot) {
	m.mu.Lock()
	m.lastApproved = &s
	m.mu.Unlock()
}

func (m *Monitor) revert() {
	m.window.Extend(m.suppressFor)

	var err error
	if last := m.LastApproved(); last != nil {
		err = clipboard.Restore(m.cb, *last)
	} else {
		err = clipboard.ClearWithRetry(m.cb)
	}
	if err != nil {
		m.fail("revert clipboard", err)
	}
}

func (m *Monitor) enabled() bool {
	return m.state == nil || m.state.Enabled()
}

func (m *Monitor) bypass(ctx context.Context, actorID string, d approval.Direction) (mediation.Resolution, bool) {
	if !m.enabled() {
		return mediation.ResolutionUnprotected, true
	}
	if m.exempt(ctx, actorID, d) {
		return mediation.ResolutionExempt, true
	}
	return "", false
}

func (m *Monitor) exempt(ctx context.Context, actorID string, d approval.Direction) bool {
	if m.policy == nil || actorID == "" {
		return false
	}
	resp, err := m.policy.Evaluate(ctx, policy.Request{ActorID: actorID, Direction: d})
	if err != nil {
		log.Warn().Err(err).Str("actor", actorID).Msg("exemption check failed, mediating")
		return false
	}
	if resp.Exempt {
		log.Debug().Str("actor", actorID).Str("reason", resp.Reason).Msg("actor exempt")
	}
	return resp.Exempt
}

func (m *Monitor) dispose(d Disposition) Disposition {
	m.metrics.IncEvent(string(d))
	return d
}

func (m *Monitor) fail(op string, err error) {
	log.Error().Err(err).Str("op", op).Msg("clipboard operation failed")
	m.history.Log(audit.ActionError, audit.DecisionFailed, "", op+": "+err.Error())
}

func actorName(id, label string) string {
	switch {
	case label != "":
		return label
	case id != "":
		return id
	}
	return approval.LocalActor
}
