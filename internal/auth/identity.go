// Package auth resolves the caller's identity for each request.
//
// An Identity is an opaque, stable, non-empty string naming the caller. It is
// established once per request by Middleware (from a verified session token)
// and read back through a Resolver. Nothing in this package invents an
// identity: when no valid session is present the caller is simply absent.
package auth

import (
	"context"
	"strings"
)

// Identity is the stable identifier of an authenticated caller.
type Identity string

// String returns the identity as a plain string.
func (id Identity) String() string { return string(id) }

type ctxKey struct{}

// WithIdentity returns a copy of ctx carrying id. Blank identities are
// ignored and ctx is returned unchanged.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if strings.TrimSpace(string(id)) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Resolver yields the identity of the caller associated with ctx.
// Implementations must be free of side effects.
type Resolver interface {
	Resolve(ctx context.Context) (Identity, bool)
}

// ResolverFunc adapts a plain function to the Resolver interface.
type ResolverFunc func(ctx context.Context) (Identity, bool)

// Resolve calls f(ctx).
func (f ResolverFunc) Resolve(ctx context.Context) (Identity, bool) { return f(ctx) }

// ContextResolver reads the identity attached to the request context by
// Middleware.
var ContextResolver Resolver = ResolverFunc(FromContext)
