package checks

import (
	"strings"
	"sync"

	perrors "github.com/vinayprograms/pulse/errors"
)

// Registry is the catalog of checks for one engine. Hosts register every
// check at startup, before the first cycle; after that it is read-only.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Check
	order []Check
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Check)}
}

// Register adds c. A duplicate id returns a DUPLICATE_CHECK error and
// leaves the first registration in place; missing fields return INVALID_CHECK.
func (r *Registry) Register(c Check) error {
	if err := validate(c); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[c.ID()]; exists {
		return perrors.DuplicateCheck(c.ID())
	}
	r.byID[c.ID()] = c
	r.order = append(r.order, c)
	return nil
}

// MustRegister registers every check and panics on the first failure.
// Intended for composition roots where a bad registration is fatal anyway.
func (r *Registry) MustRegister(cs ...Check) {
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

func validate(c Check) error {
	if c == nil {
		return perrors.InvalidCheck("", "nil check")
	}
	id := c.ID()
	switch {
	case strings.TrimSpace(id) == "":
		return perrors.InvalidCheck(id, "empty id")
	case strings.ContainsAny(id, " \t\n"):
		return perrors.InvalidCheck(id, "id contains whitespace")
	case !validID(id):
		return perrors.InvalidCheck(id, "id may only contain letters, digits and - / _ = .")
	case !c.Priority().Valid():
		return perrors.InvalidCheck(id, "invalid priority "+c.Priority().String())
	case strings.TrimSpace(c.Description()) == "":
		return perrors.InvalidCheck(id, "empty description")
	}
	return nil
}

// validID reports whether id fits the key charset of every state backend,
// since breaker keys embed it.
func validID(id string) bool {
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '/', r == '_', r == '=', r == '.':
		default:
			return false
		}
	}
	return true
}

// Get returns the check registered under id.
func (r *Registry) Get(id string) (Check, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	return c, ok
}

// ListByPriority returns checks of priority p in registration order.
func (r *Registry) ListByPriority(p Priority) []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Check
	for _, c := range r.order {
		if c.Priority() == p {
			out = append(out, c)
		}
	}
	return out
}

// ListAll returns every check in registration order.
func (r *Registry) ListAll() []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Check, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered checks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Reset removes every registration. Test harnesses only: a production
// reset would silently stop all scheduling.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]Check)
	r.order = nil
}

// IDs extracts the ids of cs, preserving order.
func IDs(cs []Check) []string {
	ids := make([]string, len(cs))
	for i, c := range cs {
		ids[i] = c.ID()
	}
	return ids
}
