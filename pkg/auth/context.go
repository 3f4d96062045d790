package auth

import (
	"context"
)

// UserContextKey is the key used to store a UserContext in the request
// context.
//
// Using an empty struct as the key prevents collisions with other context
// keys, as each empty struct type is distinct even if they have the same name
// in different packages.
type UserContextKey struct{}

// WithUserContext stores a UserContext in the context.
// If user is nil, the original context is returned unchanged.
func WithUserContext(ctx context.Context, user *UserContext) context.Context {
	if user == nil {
		return ctx
	}
	return context.WithValue(ctx, UserContextKey{}, user)
}

// UserContextFromContext retrieves a UserContext from the context.
// Returns the user and true if present, nil and false otherwise.
func UserContextFromContext(ctx context.Context) (*UserContext, bool) {
	user, ok := ctx.Value(UserContextKey{}).(*UserContext)
	return user, ok
}
