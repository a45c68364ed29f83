package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/akarpov87/mealkeep/internal/common"
)

// Claims is the token payload the provider issues: the subject is the
// stable user id, and the anonymous flag distinguishes guest sessions
// from linked credentials.
type Claims struct {
	jwt.RegisteredClaims
	Anonymous bool   `json:"anonymous"`
	Email     string `json:"email,omitempty"`
}

// TokenProvider is a Provider fed by ID tokens. SetToken parses and
// verifies a token and publishes the resulting identity to subscribers;
// it is how sign-in, credential linking, and token refresh all surface
// here.
type TokenProvider struct {
	secret []byte

	mu      sync.RWMutex
	current Identity
	token   string
	nextSub int
	subs    map[int]func(Identity)
}

// NewTokenProvider builds a provider verifying HMAC-signed tokens with
// the given secret. Before any SetToken call the identity is an empty
// anonymous one.
func NewTokenProvider(secret []byte) *TokenProvider {
	return &TokenProvider{
		secret:  secret,
		current: Identity{IsAnonymous: true},
		subs:    make(map[int]func(Identity)),
	}
}

// SetToken verifies tokenString and switches the current identity to the
// one it describes.
func (p *TokenProvider) SetToken(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, common.ErrInvalidToken
	}

	id := Identity{
		ID:          claims.Subject,
		IsAnonymous: claims.Anonymous,
		Email:       claims.Email,
	}

	p.mu.Lock()
	p.current = id
	p.token = tokenString
	fns := make([]func(Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
	return id, nil
}

// Token returns the raw token for outbound request authorization.
func (p *TokenProvider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

func (p *TokenProvider) Current(ctx context.Context) (Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, nil
}

func (p *TokenProvider) OnChange(fn func(Identity)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSub
	p.nextSub++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

func (p *TokenProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.current = Identity{IsAnonymous: true}
	p.token = ""
	fns := make([]func(Identity), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	current := p.current
	p.mu.Unlock()

	for _, fn := range fns {
		fn(current)
	}
	return nil
}
