package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Registry resolves the native channel and one token ledger per approved token.
type Registry struct {
	mu      sync.RWMutex
	native  NativeChannel
	tokens  map[string]TokenLedger
	factory Factory
}

// NewRegistry creates a new ledger registry
func NewRegistry(native NativeChannel, factory Factory) *Registry {
	return &Registry{
		native:  native,
		tokens:  make(map[string]TokenLedger),
		factory: factory,
	}
}

// Register creates a ledger handle for the token through the factory.
// Registering an already known token is a no-op.
func (r *Registry) Register(ctx context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[token]; ok {
		return nil
	}

	l, err := r.factory.CreateLedger(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to create %s ledger for token %s: %w", r.factory.Provider(), token, err)
	}
	r.tokens[token] = l
	return nil
}

// Native returns the native value channel
func (r *Registry) Native() NativeChannel {
	return r.native
}

// Token returns the ledger for a registered token
func (r *Registry) Token(token string) (TokenLedger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return l, nil
}

// Tokens returns registered token ids in lexical order
func (r *Registry) Tokens() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tokens))
	for id := range r.tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
