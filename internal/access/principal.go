package access

import "context"

// Principal is who a find runs as.
type Principal struct {
	ID        int64
	Roles     []int64
	Guest     bool
	Superuser bool
	// Language is the active language id; 0 means the default language.
	Language int
}

// GuestPrincipal is the anonymous principal.
func GuestPrincipal() Principal {
	return Principal{Guest: true}
}

type principalKey struct{}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal attached to ctx, or the guest.
func FromContext(ctx context.Context) Principal {
	if p, ok := ctx.Value(principalKey{}).(Principal); ok {
		return p
	}
	return GuestPrincipal()
}
