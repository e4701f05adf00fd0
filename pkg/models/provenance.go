package models

import "context"

// ActorSource represents how an operation was initiated.
type ActorSource string

// Actor sources.
const (
	SourceSystem  ActorSource = "system"  // pipeline-initiated
	SourceAnalyst ActorSource = "analyst" // human review action
)

// Actor carries who performed an action and how. Attached to context by
// middleware so audit appends can record identity without threading it
// through every call.
type Actor struct {
	ID     string
	Source ActorSource
}

type actorKey struct{}

// WithActor returns a new context with the actor attached.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// GetActor retrieves the actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// ActorOrSystem returns the context actor, or the system actor when none is set.
func ActorOrSystem(ctx context.Context) Actor {
	if a, ok := GetActor(ctx); ok {
		return a
	}
	return Actor{ID: "system", Source: SourceSystem}
}
