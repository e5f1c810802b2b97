package threadid

import "sync"

// Registry is the set of thread ids handed out during one import run.
// Ids keep their claim order. It is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
}

// NewRegistry returns a registry pre-populated with seed, e.g. ids that are
// already present in the destination store.
func NewRegistry(seed ...string) *Registry {
	r := &Registry{
		ids: make(map[string]struct{}, len(seed)),
	}
	for _, id := range seed {
		r.add(id)
	}
	return r
}

// Contains reports whether id has been claimed.
func (r *Registry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.ids[id]
	return ok
}

// Claim adds id and reports true if it was not yet present.
// The check and the insert happen under one lock.
func (r *Registry) Claim(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.add(id)
}

// ClaimFirst claims the first candidate produced by next that is still free.
// next is called with 0, 1, 2, ... and is never called concurrently.
func (r *Registry) ClaimFirst(next func(n int) string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for n := 0; ; n++ {
		id := next(n)
		if r.add(id) {
			return id
		}
	}
}

// Len returns the number of claimed ids.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.order)
}

// IDs returns the claimed ids in claim order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) add(id string) bool {
	if _, exists := r.ids[id]; exists {
		return false
	}
	r.ids[id] = struct{}{}
	r.order = append(r.order, id)
	return true
}
