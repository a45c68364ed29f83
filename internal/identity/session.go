package identity

import (
	"context"
	"sync"
)

// Session is the explicit session-context object handed to the sync
// engine. It tracks the current identity, owns the provider subscription,
// and fires the OnLink hook exactly once per anonymous->authenticated
// transition so callers can reassign queued work before reconciling.
//
// There is deliberately no package-level "current user": everything that
// needs the identity receives a *Session.
type Session struct {
	provider Provider

	mu          sync.RWMutex
	current     Identity
	onLink      func(Identity)
	unsubscribe func()
}

// NewSession builds a session over provider and starts following its
// identity changes. Close releases the subscription.
func NewSession(ctx context.Context, provider Provider) (*Session, error) {
	current, err := provider.Current(ctx)
	if err != nil {
		return nil, err
	}

	s := &Session{provider: provider, current: current}
	s.unsubscribe = provider.OnChange(s.apply)
	return s, nil
}

func (s *Session) apply(next Identity) {
	s.mu.Lock()
	prev := s.current
	s.current = next
	hook := s.onLink
	s.mu.Unlock()

	linked := prev.IsAnonymous && !next.IsAnonymous && next.ID != ""
	if linked && hook != nil {
		hook(next)
	}
}

// OnLink registers the hook run when an anonymous identity becomes
// authenticated. The engine's caller wires pending-work reassignment and
// a reconciliation here.
func (s *Session) OnLink(fn func(Identity)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLink = fn
}

// Current returns the identity as of the latest provider notification.
func (s *Session) Current() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Owner returns the id to sync against, or "" for anonymous sessions,
// which are never pushed or pulled.
func (s *Session) Owner() string {
	id := s.Current()
	if id.IsAnonymous {
		return ""
	}
	return id.ID
}

// Close releases the provider subscription.
func (s *Session) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}
