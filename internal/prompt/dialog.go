package prompt

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
	"github.com/rs/zerolog/log"
)

// ErrNoBackend is returned when no native dialog program is installed.
var ErrNoBackend = errors.New("prompt: no dialog backend available")

// ShowFunc displays a yes/no dialog and reports whether the user allowed.
type ShowFunc func(ctx context.Context, title, message string) (bool, error)

// Dialog asks the local user through a native dialog process. The dialog is
// killed when ctx ends, which the mediation core does once it stops waiting.
type Dialog struct {
	resolver Resolver
	show     ShowFunc
}

func NewDialog(resolver Resolver) *Dialog {
	return &Dialog{resolver: resolver, show: showNative}
}

func NewDialogWith(resolver Resolver, show ShowFunc) *Dialog {
	return &Dialog{resolver: resolver, show: show}
}

func (d *Dialog) Prompt(ctx context.Context, req approval.Request) error {
	allowed, err := d.show(ctx, "Clipboard Guardian", Describe(req))
	if ctx.Err() != nil {
		// Timed out or canceled; the request is already denied.
		return nil
	}
	if err != nil {
		return fmt.Errorf("show dialog: %w", err)
	}

	v := approval.VerdictDeny
	if allowed {
		v = approval.VerdictAllow
	}
	if err := d.resolver.Resolve(req.ID, v); err != nil {
		log.Debug().Err(err).Str("id", req.ID).Msg("dialog verdict arrived too late")
	}
	return nil
}

// Describe renders the human-readable question for req.
func Describe(req approval.Request) string {
	who := req.ActorLabel
	if who == "" {
		who = req.ActorID
	}
	if who == "" {
		who = "An application"
	}

	var b strings.Builder
	switch req.Direction {
	case approval.DirectionRead:
		fmt.Fprintf(&b, "%s wants to read the clipboard.", who)
	default:
		fmt.Fprintf(&b, "%s wants to change the clipboard.", who)
	}
	if req.Preview != "" {
		b.WriteString("\n\n")
		b.WriteString(req.Preview)
	}
	return b.String()
}
