package finch

import (
	"context"
	"fmt"
	"sync"

	"github.com/Darkness4/finch/graphql"
	"github.com/rs/zerolog/log"
)

// Mux routes envelopes to a Handler according to their MessageKey.
type Mux struct {
	mu       sync.RWMutex
	handlers map[MessageKey]Handler
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{
		handlers: make(map[MessageKey]Handler),
	}
}

// Handle registers the handler for the given key.
func (m *Mux) Handle(key MessageKey, h Handler) {
	if h == nil {
		log.Panic().Str("key", string(key)).Msg("handler is nil")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[key] = h
}

// HandleMessage dispatches the envelope to the handler registered for its key.
func (m *Mux) HandleMessage(ctx context.Context, env Envelope) (*graphql.Response, error) {
	if env.Query == nil {
		return nil, ErrMissingDocument
	}
	m.mu.RLock()
	h, ok := m.handlers[env.Type]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageKey, env.Type)
	}
	return h.HandleMessage(ctx, env)
}
