package shared

import "context"

// Claims carries the identity established by the upstream token verifier.
// Signature and issuer checks happen before a request reaches this process;
// the claims here are trusted input.
type Claims struct {
	UserID string
	OrgID  string
}

// Valid reports whether the claims identify a user within an org.
func (c Claims) Valid() bool {
	return c.UserID != "" && c.OrgID != ""
}

type claimsContextKey struct{}

// ContextWithClaims stores the claims in context.
func ContextWithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ClaimsFromContext extracts the claims from context.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(Claims)
	return claims, ok
}
