// Package store keeps the most recent page context per URL. Both the
// REST intake endpoint and the WebSocket handler write here; agent
// endpoints read from it.
package store

import (
	"sync"

	"github.com/contextbridge/backend/internal/types"
)

// DefaultKey tracks the most recently received context regardless of URL.
const DefaultKey = "default"

// Contexts is a thread-safe context store.
type Contexts struct {
	mu       sync.RWMutex
	contexts map[string]*types.PageContext
	history  []*types.PageContext
	maxHist  int
}

// NewContexts creates an empty store keeping up to 100 history entries.
func NewContexts() *Contexts {
	return &Contexts{
		contexts: make(map[string]*types.PageContext),
		maxHist:  100,
	}
}

// Put stores a context under its URL and the default key, and appends it
// to the behavior history.
func (s *Contexts) Put(ctx *types.PageContext) {
	if ctx == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ctx.URL
	if key == "" {
		key = DefaultKey
	}
	s.contexts[key] = ctx
	s.contexts[DefaultKey] = ctx

	s.history = append(s.history, ctx)
	if len(s.history) > s.maxHist {
		s.history = s.history[len(s.history)-s.maxHist:]
	}
}

// Get returns the context for a URL, falling back to the most recent one.
// An empty url reads the default key directly.
func (s *Contexts) Get(url string) (*types.PageContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if url == "" {
		url = DefaultKey
	}
	if ctx, ok := s.contexts[url]; ok {
		return ctx, true
	}
	ctx, ok := s.contexts[DefaultKey]
	return ctx, ok
}

// History returns a copy of the context history, oldest first.
func (s *Contexts) History() []*types.PageContext {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.PageContext, len(s.history))
	copy(out, s.history)
	return out
}

// Len returns the number of distinct URLs stored.
func (s *Contexts) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}
