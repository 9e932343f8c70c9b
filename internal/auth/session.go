package auth

import (
	"context"
	"sync"
)

// Session reports the identity operations run on behalf of.
type Session interface {
	CurrentUserID(ctx context.Context) (string, bool)
}

type contextKey struct{}

// WithUserID returns a context carrying userID as the signed-in user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserIDFromContext returns the user id stored by WithUserID.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(contextKey{}).(string)
	return userID, ok && userID != ""
}

// ContextSession resolves the user from the request context only. It is the
// session used behind the HTTP surface, where every request authenticates
// itself.
type ContextSession struct{}

// CurrentUserID implements Session.
func (ContextSession) CurrentUserID(ctx context.Context) (string, bool) {
	return UserIDFromContext(ctx)
}

// LocalSession is a process-wide signed-in user for embedded use. A user id
// in the context still takes precedence.
type LocalSession struct {
	mu     sync.RWMutex
	userID string
}

// NewLocalSession returns a signed-out session.
func NewLocalSession() *LocalSession {
	return &LocalSession{}
}

// CurrentUserID implements Session.
func (s *LocalSession) CurrentUserID(ctx context.Context) (string, bool) {
	if userID, ok := UserIDFromContext(ctx); ok {
		return userID, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// SetUser marks userID as signed in.
func (s *LocalSession) SetUser(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
}

// Clear signs the user out.
func (s *LocalSession) Clear() {
	s.SetUser("")
}
