// ABOUTME: Context helpers for carrying the active session through call chains
// ABOUTME: Provides WithSession/FromContext/MustFromContext

package session

import (
	"context"
)

// sessionKey is the key type for storing a Session in context.Context.
type sessionKey struct{}

// WithSession returns a new context with the session attached.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext retrieves the session from the context, returning nil if not present.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}

// MustFromContext retrieves the session from the context, panicking if not present.
func MustFromContext(ctx context.Context) *Session {
	s := FromContext(ctx)
	if s == nil {
		panic("session: Session not found in context")
	}
	return s
}
