package task

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// Registry stores task entries. Implementations must be safe for
// concurrent use by workers and pollers.
type Registry interface {
	// Insert adds a new entry. It fails if the ID is taken.
	Insert(e Entry) error

	// Update applies fn to the stored entry atomically. It returns false
	// when the ID is unknown.
	Update(id string, fn func(e *Entry)) bool

	// Get returns a copy of the entry.
	Get(id string) (Entry, bool)

	// Remove deletes the entry and reports whether it existed.
	Remove(id string) bool

	// List returns a snapshot of all states, oldest first.
	List() []State
}

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{entries: make(map[string]*Entry)}
}

func (r *MemoryRegistry) Insert(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.ID]; ok {
		return eris.Errorf("task: duplicate id %s", e.ID)
	}
	r.entries[e.ID] = &e
	return nil
}

func (r *MemoryRegistry) Update(id string, fn func(e *Entry)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	fn(e)
	return true
}

func (r *MemoryRegistry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (r *MemoryRegistry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	return ok
}

func (r *MemoryRegistry) List() []State {
	r.mu.RLock()
	out := make([]State, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.State)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
