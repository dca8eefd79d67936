package audit

import (
	"fmt"
	"unicode/utf8"
)

func validateEntry(e Entry) error {
	if e.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp cannot be zero", ErrInvalidEntry)
	}

	if !isValidAction(e.Action) {
		return fmt.Errorf("%w: invalid action: %s", ErrInvalidEntry, e.Action)
	}

	if !isValidDecision(e.Decision) {
		return fmt.Errorf("%w: invalid decision: %s", ErrInvalidEntry, e.Decision)
	}

	if utf8.RuneCountInString(e.Sample) > MaxSampleRunes {
		return fmt.Errorf("%w: sample longer than %d runes", ErrInvalidEntry, MaxSampleRunes)
	}

	return nil
}

func isValidAction(a Action) bool {
	switch a {
	case ActionCopy, ActionPaste, ActionToggle, ActionError:
		return true
	}
	return false
}

func isValidDecision(d Decision) bool {
	switch d {
	case DecisionPending, DecisionAllowed, DecisionBlocked, DecisionFailed, DecisionEnabled, DecisionDisabled:
		return true
	}
	return false
}

func truncateSample(s string) string {
	if utf8.RuneCountInString(s) <= MaxSampleRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxSampleRunes {
			return s[:i]
		}
		n++
	}
	return s
}
