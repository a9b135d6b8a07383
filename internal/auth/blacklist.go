package auth

import (
	"sync"
)

// TokenBlacklist holds revoked tokens until they expire on their own.
// In-memory only: a restart clears it, which matches the token lifetimes.
type TokenBlacklist struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

var Blacklist = &TokenBlacklist{
	tokens: make(map[string]struct{}),
}

func (b *TokenBlacklist) Add(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tokens[token] = struct{}{}
}

func (b *TokenBlacklist) IsBlacklisted(token string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, ok := b.tokens[token]
	return ok
}

func (b *TokenBlacklist) Remove(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.tokens, token)
}

func (b *TokenBlacklist) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.tokens)
}
