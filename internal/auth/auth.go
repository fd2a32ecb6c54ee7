// Package auth abstracts the identity provider. The dashboard only needs to
// know whether a user is signed in and, if so, the bearer token to present to
// the API.
package auth

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotAuthenticated is returned by Token when nobody is signed in.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrNoCredentials is returned by Login when no token is configured.
	ErrNoCredentials = errors.New("no credentials configured")
)

// Provider is an identity provider.
type Provider interface {
	Authenticated() bool
	User() string
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Token(ctx context.Context) (string, error)
}

// StaticProvider signs in with a preconfigured bearer token.
type StaticProvider struct {
	token string
	user  string

	mu       sync.RWMutex
	loggedIn bool
}

// NewStaticProvider returns a provider for token and user. It starts signed
// out unless signedIn is set and a token is available.
func NewStaticProvider(token, user string, signedIn bool) *StaticProvider {
	return &StaticProvider{
		token:    token,
		user:     user,
		loggedIn: signedIn && token != "",
	}
}

// Authenticated reports whether a user is signed in.
func (p *StaticProvider) Authenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loggedIn
}

// User returns the signed-in user's label, or "" when signed out.
func (p *StaticProvider) User() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.loggedIn {
		return ""
	}
	if p.user == "" {
		return "user"
	}
	return p.user
}

// Login signs in.
func (p *StaticProvider) Login(context.Context) error {
	if p.token == "" {
		return ErrNoCredentials
	}
	p.mu.Lock()
	p.loggedIn = true
	p.mu.Unlock()
	return nil
}

// Logout signs out.
func (p *StaticProvider) Logout(context.Context) error {
	p.mu.Lock()
	p.loggedIn = false
	p.mu.Unlock()
	return nil
}

// Token returns the bearer token for API calls.
func (p *StaticProvider) Token(context.Context) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.loggedIn {
		return "", ErrNotAuthenticated
	}
	return p.token, nil
}
