package prompt

import (
	"context"
	"errors"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
	"github.com/dagbolade/clipboard-guardian/internal/mediation"
)

// Chain tries each prompter in order and stops at the first one that
// succeeds.
type Chain []mediation.Prompter

func (c Chain) Prompt(ctx context.Context, req approval.Request) error {
	var errs []error
	for _, p := range c {
		err := p.Prompt(ctx, req)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return ErrNoApprover
	}
	return errors.Join(errs...)
}
