package identity

import "sync"

// Index is the ordered set of handles the user has encountered. Handles are
// only ever appended.
type Index struct {
	mu      sync.Mutex
	handles []string
	seen    map[string]struct{}
}

// NewIndex returns an index seeded with handles, duplicates dropped.
func NewIndex(handles ...string) *Index {
	idx := &Index{seen: make(map[string]struct{})}
	for _, handle := range handles {
		idx.Add(handle)
	}
	return idx
}

// Add appends handle unless it is already present and reports whether it was
// added.
func (i *Index) Add(handle string) bool {
	if handle == "" {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.seen[handle]; ok {
		return false
	}
	i.seen[handle] = struct{}{}
	i.handles = append(i.handles, handle)
	return true
}

// Contains reports whether handle was added.
func (i *Index) Contains(handle string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.seen[handle]
	return ok
}

// Handles returns a copy in insertion order.
func (i *Index) Handles() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.handles...)
}
