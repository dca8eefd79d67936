package audit

import (
	"context"
	"errors"
	"time"
)

type Action string

const (
	ActionCopy   Action = "copy"
	ActionPaste  Action = "paste"
	ActionToggle Action = "toggle"
	ActionError  Action = "error"
)

type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionAllowed  Decision = "allowed"
	DecisionBlocked  Decision = "blocked"
	DecisionFailed   Decision = "failed"
	DecisionEnabled  Decision = "enabled"
	DecisionDisabled Decision = "disabled"
)

// MaxSampleRunes bounds the content sample kept with each entry.
const MaxSampleRunes = 200

var ErrInvalidEntry = errors.New("audit: invalid entry")

type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Decision  Decision  `json:"decision"`
	Sample    string    `json:"sample,omitempty"`
	Note      string    `json:"note"`
}

// Store persists entries in append order. Recent returns the newest n
// entries oldest first; n <= 0 returns everything.
type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, n int) ([]Entry, error)
	Close() error
}
