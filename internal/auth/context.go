// ABOUTME: Authentication context for tracking the verified caller through handlers
// ABOUTME: Provides WithAuth/FromContext and the subject check used at session creation

package auth

import (
	"context"
	"fmt"
)

// AuthContext holds the identity extracted from a verified bearer token.
type AuthContext struct {
	Subject string // "sub" claim of the caller's token
}

// authContextKey is the key type for storing AuthContext in context.Context.
type authContextKey struct{}

// WithAuth returns a new context with the AuthContext attached.
func WithAuth(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// FromContext retrieves the AuthContext from the context, returning nil if not present.
func FromContext(ctx context.Context) *AuthContext {
	auth, _ := ctx.Value(authContextKey{}).(*AuthContext)
	return auth
}

// CheckSubject returns ErrSubjectMismatch when ctx carries a verified caller
// whose subject differs from userID. A ctx without auth always passes.
func CheckSubject(ctx context.Context, userID string) error {
	auth := FromContext(ctx)
	if auth == nil || auth.Subject == userID {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrSubjectMismatch, userID)
}
