package bridge

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/texelworks/painterlink/internal/protocol"
)

// Handler is application-supplied logic bound to a command name. It receives
// the request's parameter bag and returns a JSON-representable result or an
// error. The bridge never mutates or retains the parameter bag.
type Handler func(params protocol.Params) (any, error)

// Registry maps command names to handlers. Names are case-insensitive and
// normalized to uppercase, matching the wire convention. Registration is
// expected to happen once at startup, before the listener starts accepting.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a command name. Registering the same name twice
// overwrites the prior handler; that is treated as a configuration error and
// surfaced with a warning rather than silently allowed.
func (r *Registry) Register(name string, handler Handler) {
	key := strings.ToUpper(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[key]; exists {
		slog.Warn("Command registered twice, overwriting previous handler", "command", key)
	}
	r.handlers[key] = handler
}

// Resolve looks up the handler for a command name.
func (r *Registry) Resolve(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[strings.ToUpper(name)]
	return handler, ok
}

// Names returns the registered command names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
