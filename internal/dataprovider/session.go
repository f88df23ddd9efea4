package dataprovider

import (
	"context"
	"sync"
)

// Tokens is an access/refresh token pair.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Session holds the credentials shared by every request of a Client.
type Session struct {
	mu     sync.Mutex
	tokens Tokens
}

// NewSession starts a session with the given tokens.
func NewSession(t Tokens) *Session {
	return &Session{tokens: t}
}

// Tokens returns the current pair.
func (s *Session) Tokens() Tokens {
	if s == nil {
		return Tokens{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// Set replaces the pair.
func (s *Session) Set(t Tokens) {
	s.mu.Lock()
	s.tokens = t
	s.mu.Unlock()
}

// Clear forgets both tokens.
func (s *Session) Clear() { s.Set(Tokens{}) }

// refresh swaps the tokens using fn unless another caller already replaced
// the access token that failed. Concurrent 401s on the same token therefore
// trigger a single refresh.
func (s *Session) refresh(ctx context.Context, failed string, fn func(ctx context.Context, refreshToken string) (Tokens, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tokens.AccessToken != failed {
		return nil
	}
	if s.tokens.RefreshToken == "" {
		return ErrUnauthorized
	}
	next, err := fn(ctx, s.tokens.RefreshToken)
	if err != nil {
		s.tokens = Tokens{}
		return err
	}
	s.tokens = next
	return nil
}
