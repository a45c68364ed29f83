// Package identity models the opaque identity source the engine consumes.
// The authentication provider itself lives elsewhere; all the engine
// needs is a stable user id, an anonymous/authenticated flag, and a way
// to hear about changes.
package identity

import "context"

// Identity is the engine's view of the current user.
type Identity struct {
	// ID is stable for the lifetime of the identity, including across the
	// anonymous -> authenticated transition of the same provider account.
	ID string

	// IsAnonymous is true until the identity is linked to a durable
	// credential. Anonymous local writes stay queued and are never
	// transmitted.
	IsAnonymous bool

	// Email is set for authenticated identities when known.
	Email string
}

// Provider yields the current identity and change notifications.
// Implementations must tolerate no identity being available at startup.
type Provider interface {
	// Current returns the active identity. A zero Identity with
	// IsAnonymous=true means "nobody signed in yet".
	Current(ctx context.Context) (Identity, error)

	// OnChange registers fn to run on every identity transition and
	// returns the unsubscribe handle the caller owns.
	OnChange(fn func(Identity)) (unsubscribe func())

	// SignOut clears the current identity.
	SignOut(ctx context.Context) error
}
