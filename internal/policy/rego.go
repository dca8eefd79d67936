package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/v1/rego"
)

// RegoQuery is the rule a Rego exemption module must define.
const RegoQuery = "data.clipguard.exempt"

type RegoLoader struct{}

func NewRegoLoader() *RegoLoader {
	return &RegoLoader{}
}

// RegoEvaluator wraps a prepared query. An undefined result means not exempt.
type RegoEvaluator struct {
	name  string
	query rego.PreparedEvalQuery
}

func (l *RegoLoader) LoadFromFile(ctx context.Context, name, path string) (*RegoEvaluator, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return l.Compile(ctx, name, path, string(src))
}

func (l *RegoLoader) Compile(ctx context.Context, name, filename, src string) (*RegoEvaluator, error) {
	query, err := rego.New(
		rego.Query(RegoQuery),
		rego.Module(filename, src),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare rego: %w", err)
	}
	return &RegoEvaluator{name: name, query: query}, nil
}

func (e *RegoEvaluator) Name() string {
	return e.name
}

func (e *RegoEvaluator) Evaluate(ctx context.Context, req Request) (Response, error) {
	input := map[string]any{
		"actor_id":  req.ActorID,
		"direction": string(req.Direction),
	}

	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Response{}, fmt.Errorf("eval rego: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Response{Reason: "undefined"}, nil
	}

	exempt, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return Response{}, fmt.Errorf("%s must be a boolean, got %T", RegoQuery, rs[0].Expressions[0].Value)
	}
	if exempt {
		return Response{Exempt: true, Reason: "rego " + e.name}, nil
	}
	return Response{Reason: "rego " + e.name}, nil
}

func (e *RegoEvaluator) Close() error {
	return nil
}
