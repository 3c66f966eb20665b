package eventsub

import (
	"sync"
	"time"
)

// Token is the credential state produced by the external OAuth exchange: the
// exchange itself happens elsewhere, only its result lives here.
type Token struct {
	AccessToken string
	Expiry      time.Time
	UserID      string
	Login       string
}

// Valid reports whether the token is set and not expired.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && (t.Expiry.IsZero() || now.Before(t.Expiry))
}

// TokenStore holds the current token. An AuthError clears it.
type TokenStore struct {
	mu    sync.Mutex
	token Token
}

func (s *TokenStore) Set(t Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = t
}

func (s *TokenStore) Get() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *TokenStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = Token{}
}

// AuthError is a credential failure from the control-plane API. It clears the
// held token and surfaces to the UI; it never crashes the session manager.
type AuthError struct {
	Op  string
	Err error
}

func (e AuthError) Error() string {
	return "auth failed during " + e.Op + ": " + e.Err.Error()
}

func (e AuthError) Unwrap() error {
	return e.Err
}
