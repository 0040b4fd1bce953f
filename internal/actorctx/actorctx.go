// Package actorctx carries the signed-in user on a context.Context, so code
// below the HTTP layer can attribute its logs.
package actorctx

import "context"

type ctxKey struct{}

// WithUserID records the signed-in user. An empty id leaves ctx unchanged.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, userID)
}

func UserIDFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKey{}).(string)

	return v, ok && v != ""
}
