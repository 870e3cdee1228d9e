package auth

import "context"

type ctxKey int

const ctxClaims ctxKey = iota

func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, ctxClaims, c)
}

// ClaimsFrom returns the verified claims of the caller, if any.
func ClaimsFrom(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxClaims).(Claims)
	return c, ok && c.UserID > 0
}

// ActorID returns the caller's identity id for audit records, or nil for an
// anonymous request.
func ActorID(ctx context.Context) *int64 {
	c, ok := ClaimsFrom(ctx)
	if !ok {
		return nil
	}
	id := c.UserID
	return &id
}
