package auth

import (
	"context"
	"strings"
)

// Caller is the identity a request is made on behalf of.
type Caller struct {
	ID        string
	Scopes    []string
	Anonymous bool
}

// AnonymousCaller holds no scopes.
var AnonymousCaller = Caller{ID: "anonymous", Anonymous: true}

// CallerFromClaims builds the caller described by a verified token.
func CallerFromClaims(c *Claims) Caller {
	return Caller{ID: c.ClientID, Scopes: append([]string(nil), c.Scopes...)}
}

// HasPermission reports whether any of the caller's scopes satisfies scope.
// A scope ending in "*" satisfies every scope starting with what precedes it.
func (c Caller) HasPermission(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
		if strings.HasSuffix(s, "*") && strings.HasPrefix(scope, strings.TrimSuffix(s, "*")) {
			return true
		}
	}
	return false
}

func (c Caller) String() string {
	return c.ID
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFromContext returns the caller stored by WithCaller, or AnonymousCaller.
func CallerFromContext(ctx context.Context) Caller {
	if c, ok := ctx.Value(callerKey{}).(Caller); ok {
		return c
	}
	return AnonymousCaller
}
