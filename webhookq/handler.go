package webhookq

import (
	"context"
	"fmt"
	"sync"
)

// Handler executes the side effect for one (provider, event type) pair.
// Domain packages implement this interface; the queue infrastructure stays
// decoupled from event semantics.
//
// Returning an error wrapped by Terminal short-circuits retries; any other
// error schedules a backed-off retry until the event's attempt ceiling.
type Handler interface {
	// Handle runs the side effect. Handlers decode their own payload from
	// event.Payload and must respect ctx cancellation.
	Handle(ctx context.Context, event *Event) error

	// Provider returns the integration this handler serves (e.g. "calendly").
	Provider() string

	// EventType returns the event type this handler serves
	// (e.g. "invitee.created").
	EventType() string
}

// Registry maps (provider, event type) pairs to handlers. Built at startup;
// thread-safe for concurrent lookup.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func registryKey(provider, eventType string) string {
	return provider + "/" + eventType
}

// Register adds a handler under its (provider, event type) pair.
// Panics if that pair is already registered.
func (r *Registry) Register(handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey(handler.Provider(), handler.EventType())
	if _, exists := r.handlers[key]; exists {
		panic(fmt.Sprintf("handler already registered for: %s", key))
	}
	r.handlers[key] = handler
}

// Get retrieves the handler for a (provider, event type) pair.
// Returns nil if no handler is registered.
func (r *Registry) Get(provider, eventType string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[registryKey(provider, eventType)]
}

// Has checks whether a handler is registered for the pair.
func (r *Registry) Has(provider, eventType string) bool {
	return r.Get(provider, eventType) != nil
}

// Pairs returns all registered (provider, event type) keys.
func (r *Registry) Pairs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.handlers))
	for key := range r.handlers {
		keys = append(keys, key)
	}
	return keys
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	ProviderName  string
	EventTypeName string
	Fn            func(ctx context.Context, event *Event) error
}

func (h HandlerFunc) Handle(ctx context.Context, event *Event) error { return h.Fn(ctx, event) }
func (h HandlerFunc) Provider() string                               { return h.ProviderName }
func (h HandlerFunc) EventType() string                              { return h.EventTypeName }
