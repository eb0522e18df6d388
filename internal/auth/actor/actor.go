// Package actor carries the acting identity for one logical request on the
// context. Core operations take the actor explicitly instead of reading it
// from ambient request state, so attribution is visible at every call site.
package actor

import "context"

type ctxKey struct{}

// Actor identifies who is performing an operation and from where. UserID is
// empty for anonymous requests (failed logins against unknown accounts still
// carry the source IP).
type Actor struct {
	UserID string
	IP     string
}

// Anonymous reports whether no authenticated user is attached.
func (a Actor) Anonymous() bool { return a.UserID == "" }

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the actor on the context, or a zero Actor when none
// was installed.
func FromContext(ctx context.Context) Actor {
	if a, ok := ctx.Value(ctxKey{}).(Actor); ok {
		return a
	}
	return Actor{}
}
