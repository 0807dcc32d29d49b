package session

import "context"

var principalCtxKey = &contextKey{"principal"}
var stateCtxKey = &contextKey{"state"}

type contextKey struct {
	name string
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, principal)
}

// PrincipalFromContext finds the principal from the context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(*Principal)
	return raw, ok
}

// WithState sets the session State snapshot in the given context
func WithState(ctx context.Context, state State) context.Context {
	return context.WithValue(ctx, stateCtxKey, state)
}

// StateFromContext extracts the session State from the context
func StateFromContext(ctx context.Context) (State, bool) {
	raw, ok := ctx.Value(stateCtxKey).(State)
	return raw, ok
}

// HasRole is a convenience check against the context principal.
func HasRole(ctx context.Context, role Role) bool {
	principal, ok := PrincipalFromContext(ctx)
	if !ok || principal == nil {
		return false
	}
	return principal.Role == role
}
