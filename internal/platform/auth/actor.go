package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role names carried in JWT claims and checked by RequireRole.
const (
	RoleAdmin         = "admin"
	RoleBranchManager = "branch_manager"
	RoleDoctor        = "doctor"
	RoleReceptionist  = "receptionist"
)

// Actor identifies the authenticated caller of a service operation. It is
// extracted once by the auth middleware and passed explicitly into every
// scheduling call instead of being read from ambient request state.
type Actor struct {
	ID       uuid.UUID
	Role     string
	BranchID uuid.UUID
}

// BranchScoped reports whether the actor may only act within their own branch.
func (a Actor) BranchScoped() bool {
	return a.Role == RoleBranchManager
}

type contextKey string

const actorKey contextKey = "actor"

// WithActor returns a context carrying the actor.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFromContext retrieves the actor set by the auth middleware. The zero
// Actor is returned when no authentication ran.
func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey).(Actor)
	return a
}
