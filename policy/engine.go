package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decision is the outcome of a resolution policy evaluation.
type Decision string

const (
	// FailOpen lets ingestion continue with a disposable session.
	FailOpen Decision = "fail_open"
	// FailClosed rejects the write.
	FailClosed Decision = "fail_closed"
)

// Reasons passed as input.reason.
const (
	ReasonStoreUnavailable = "store_unavailable"
	ReasonInternal         = "internal"
)

// Input is the document a policy is evaluated against.
type Input struct {
	Reason    string `json:"reason"`
	Reference string `json:"reference"`
	AgentID   string `json:"agent_id"`
}

// Engine is the OPA policy engine deciding how session resolution failures
// are handled.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.session_policy.decision"),
		rego.Module("session_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the policy at path, or DefaultPolicy when path is
// empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate returns the decision for input. A policy that produces no result
// or an unexpected value fails closed.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(map[string]interface{}{
		"reason":    input.Reason,
		"reference": input.Reference,
		"agent_id":  input.AgentID,
	}))
	if err != nil {
		return FailClosed, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return FailClosed, nil
	}

	s, ok := results[0].Expressions[0].Value.(string)
	if !ok {
		return FailClosed, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}
	switch Decision(s) {
	case FailOpen, FailClosed:
		return Decision(s), nil
	default:
		return FailClosed, fmt.Errorf("unknown policy decision %q", s)
	}
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package session_policy

default decision = "fail_closed"

# Keep ingestion available when the store cannot be reached.
decision = "fail_open" {
	input.reason == "store_unavailable"
}

decision = "fail_open" {
	input.reason == "internal"
}
`
