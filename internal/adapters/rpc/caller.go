package rpc

import "context"

// Caller identifies who is invoking a procedure. Procedures re-read the
// caller's roles from the store rather than trusting any claim.
type Caller struct {
	UserID uint
}

type callerKey struct{}

// WithCaller attaches the caller to ctx
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached to ctx
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && c.UserID != 0
}
