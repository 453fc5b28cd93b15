package auth

import "context"

type contextKey struct{}

// AuthContext identifies the requester of an authenticated call.
type AuthContext struct {
	UserID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// UserID returns the requester's id, or 0 for anonymous calls.
func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// RequesterID returns the requester's id, or nil for anonymous calls.
func RequesterID(ctx context.Context) *int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return nil
	}
	id := ac.UserID
	return &id
}
