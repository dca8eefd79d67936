package approval

import (
	"errors"
	"time"
)

type Direction string

const (
	DirectionRead  Direction = "read"
	DirectionWrite Direction = "write"
)

type Verdict string

const (
	VerdictAllow Verdict = "allow"
	VerdictDeny  Verdict = "deny"
)

// LocalActor keys requests that did not come from an identifiable process.
const LocalActor = "local"

var ErrUnknownRequest = errors.New("approval: request not found or already resolved")

type Request struct {
	ID         string    `json:"id"`
	Direction  Direction `json:"direction"`
	ActorID    string    `json:"actor_id,omitempty"`
	ActorLabel string    `json:"actor_label,omitempty"`
	Preview    string    `json:"preview,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func ParseVerdict(s string) (Verdict, error) {
	switch Verdict(s) {
	case VerdictAllow, VerdictDeny:
		return Verdict(s), nil
	}
	return "", errors.New("approval: verdict must be allow or deny")
}

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionRead, DirectionWrite:
		return Direction(s), nil
	}
	return "", errors.New("approval: direction must be read or write")
}
