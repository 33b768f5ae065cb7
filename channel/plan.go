package channel

import "context"

// Plan is the subscription-derived policy the registry enforces at
// channel creation time.
type Plan struct {
	Name string
	// MaxChannels caps how many channels the user may own.
	MaxChannels int
	// AllowedTypes is the set of channel types the plan permits.
	AllowedTypes []Type
}

// Allows reports whether the plan permits creating a channel of type t.
func (p Plan) Allows(t Type) bool {
	for _, at := range p.AllowedTypes {
		if at == t {
			return true
		}
	}
	return false
}

// FreePlan is the default tier: email channels only, capped at three.
func FreePlan() Plan {
	return Plan{
		Name:         "free",
		MaxChannels:  3,
		AllowedTypes: []Type{TypeEmail},
	}
}

// ProPlan permits every channel type with a generous cap.
func ProPlan() Plan {
	return Plan{
		Name:         "pro",
		MaxChannels:  25,
		AllowedTypes: Types(),
	}
}

// PlanResolver maps a user to their current plan. The billing system
// implements this; tests use a fixed plan.
type PlanResolver interface {
	PlanFor(ctx context.Context, userID string) (Plan, error)
}

// StaticPlan is a PlanResolver that returns the same plan for every user.
type StaticPlan Plan

// PlanFor implements PlanResolver.
func (s StaticPlan) PlanFor(_ context.Context, _ string) (Plan, error) {
	return Plan(s), nil
}
