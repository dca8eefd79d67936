package policy

import (
	"context"

	"github.com/dagbolade/clipboard-guardian/internal/approval"
)

// Request describes the actor whose clipboard access may bypass mediation.
type Request struct {
	ActorID   string             `json:"actor_id"`
	Direction approval.Direction `json:"direction"`
}

type Response struct {
	Exempt bool   `json:"exempt"`
	Reason string `json:"reason"`
}

// Evaluator decides whether an actor is exempt from mediation. An error is
// treated by callers as "not exempt".
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Response, error)
}
