package mediation

import (
	"context"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
	"github.com/dagbolade/clipboard-guardian/internal/clipboard"
)

// Resolution records how a verdict was reached. Only logging, metrics and
// history care; every non-allow outcome is a plain deny to the caller.
type Resolution string

const (
	ResolutionUser         Resolution = "user"
	ResolutionCached       Resolution = "cached"
	ResolutionTimeout      Resolution = "timeout"
	ResolutionPromptFailed Resolution = "prompt_failed"
	ResolutionCanceled     Resolution = "canceled"

	// Set by callers that let an access through without mediating it.
	ResolutionExempt      Resolution = "exempt"
	ResolutionUnprotected Resolution = "unprotected"
)

type Attempt struct {
	Direction  approval.Direction
	ActorID    string
	ActorLabel string
	Snapshot   *clipboard.Snapshot
}

type Outcome struct {
	RequestID  string           `json:"request_id,omitempty"`
	Verdict    approval.Verdict `json:"verdict"`
	Resolution Resolution       `json:"resolution"`
}

func (o Outcome) Allowed() bool {
	return o.Verdict == approval.VerdictAllow
}

// Prompter shows a request to a human. It returns once the prompt is up (or
// has been answered); the verdict itself travels through approval.Channel.
type Prompter interface {
	Prompt(ctx context.Context, req approval.Request) error
}

type PrompterFunc func(ctx context.Context, req approval.Request) error

func (f PrompterFunc) Prompt(ctx context.Context, req approval.Request) error {
	return f(ctx, req)
}
