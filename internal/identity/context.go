package identity

import (
	"context"

	appErrors "github.com/Ezhumalai-castellanre/lppmrentals-sub001/pkg/errors"
)

type contextKey struct{}

// WithPrincipal returns a context carrying the principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext extracts the principal a middleware stored on the context.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(contextKey{}).(Principal)
	return p, ok
}

// ContextProvider resolves principals from the request context. It is the
// Provider used by the HTTP layer, where each request authenticates itself
// and server-side refresh is not possible.
type ContextProvider struct{}

func (ContextProvider) Current(ctx context.Context) (Principal, error) {
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, appErrors.NewMissingIdentity("no principal on request context")
	}
	return p, nil
}

func (ContextProvider) Refresh(ctx context.Context) (Principal, error) {
	// The caller owns the session; all we can do is hand back what the
	// request carried and let the expiry surface.
	p, ok := FromContext(ctx)
	if !ok {
		return Principal{}, appErrors.NewMissingIdentity("no principal on request context")
	}
	return p, nil
}
