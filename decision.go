package authz

import "context"

// Decision allows bypassing store-backed resolution for admin tools and
// tests. Decisions are set at Resolver construction time via WithDecision,
// making the bypass explicit and visible in code.
type Decision int

// decisionContextKey is a custom type for context keys to avoid collisions.
type decisionContextKey struct{}

var decisionKey = decisionContextKey{}

const (
	// DecisionUnset means no override - perform normal resolution.
	DecisionUnset Decision = iota

	// DecisionAllow bypasses resolution and grants the full mask.
	// Use for admin tools, background jobs, or testing authorized paths.
	DecisionAllow

	// DecisionDeny bypasses resolution and grants the empty mask.
	// Use for testing unauthorized code paths without store setup.
	DecisionDeny
)

// WithDecisionContext returns a new context carrying the given decision.
//
// The Resolver does NOT consult this value itself; it is a utility for
// applications that propagate authorization overrides through their own
// middleware and construct the Resolver accordingly. Prefer the WithDecision
// option for explicit control.
func WithDecisionContext(ctx context.Context, decision Decision) context.Context {
	return context.WithValue(ctx, decisionKey, decision)
}

// GetDecisionContext retrieves the decision from context.
// Returns DecisionUnset if no decision is set.
func GetDecisionContext(ctx context.Context) Decision {
	if decision, ok := ctx.Value(decisionKey).(Decision); ok {
		return decision
	}
	return DecisionUnset
}
