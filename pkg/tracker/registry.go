package tracker

import (
	"context"
	"fmt"
	"sync"

	"github.com/agile-defense/routetrack/pkg/eligibility"
)

// entry pairs a route with the handle that stops its refresh loop, so a key
// has a loop exactly when it has a route
type entry struct {
	key     Key
	cancel  context.CancelFunc
	results chan fetchResult

	mu      sync.Mutex
	route   TrackedRoute
	removed bool
}

func newEntry(route TrackedRoute, cancel context.CancelFunc) *entry {
	return &entry{
		key:     route.Key,
		cancel:  cancel,
		results: make(chan fetchResult, 1),
		route:   route,
	}
}

func (e *entry) view() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.route.view()
}

// Registry holds the active routes by key. The map lock only guards
// membership; route fields are guarded by each entry's own lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[Key]*entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Key]*entry)}
}

// RoutesForUnit returns how many routes the unit currently holds
func (r *Registry) RoutesForUnit(unitID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for key := range r.entries {
		if key.UnitID == unitID {
			n++
		}
	}
	return n
}

// Has reports whether a route exists for key
func (r *Registry) Has(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Len returns the number of active routes
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry) get(key Key) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[key]
}

// contains reports whether e is still the registered entry for its key
func (r *Registry) contains(e *entry) bool {
	return r.get(e.key) == e
}

// insert adds e unless its key is taken or its unit is at capacity. Both
// conditions are checked under the same lock as the insertion.
func (r *Registry) insert(e *entry) eligibility.Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[e.key]; exists {
		return routeExists(e.key)
	}

	n := 0
	for key := range r.entries {
		if key.UnitID == e.key.UnitID {
			n++
		}
	}
	if n >= eligibility.MaxRoutesPerUnit {
		return eligibility.Reject(eligibility.CodeUnitAtCapacity,
			fmt.Sprintf("unit %s already has %d active routes, maximum allowed: %d",
				e.key.UnitID, n, eligibility.MaxRoutesPerUnit))
	}

	r.entries[e.key] = e
	return eligibility.Allowed
}

func (r *Registry) remove(key Key) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return nil
	}
	delete(r.entries, key)
	return e
}

// removeEntry deletes e only if it is still the entry registered for its key
func (r *Registry) removeEntry(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries[e.key] == e {
		delete(r.entries, e.key)
	}
}

func (r *Registry) removeAll() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		removed = append(removed, e)
	}
	r.entries = make(map[Key]*entry)
	return removed
}

func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	return entries
}

func routeExists(key Key) eligibility.Result {
	return eligibility.Reject(CodeRouteExists,
		fmt.Sprintf("unit %s already has an active route to target %s", key.UnitID, key.TargetID))
}
