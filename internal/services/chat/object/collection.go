package object

// Collection is the live set of raw objects delivered by one subscription,
// ordered by first arrival. It is not safe for concurrent use; owners guard it.
type Collection struct {
	order []string
	byID  map[string]Raw
}

// NewCollection returns an empty collection.
func NewCollection() *Collection {
	return &Collection{byID: make(map[string]Raw)}
}

// Put inserts raw or replaces the object with the same id in place, keeping
// its arrival position. Objects without an id are ignored. It reports whether
// the object was new.
func (c *Collection) Put(raw Raw) (inserted bool, ok bool) {
	id := raw.ID()
	if id == "" {
		return false, false
	}
	if _, exists := c.byID[id]; !exists {
		c.order = append(c.order, id)
		inserted = true
	}
	c.byID[id] = raw.Clone()
	return inserted, true
}

// Patch sets key on the object already stored under id and returns a copy of
// the result. It never inserts: ok is false when id is not present.
func (c *Collection) Patch(id, key string, value any) (patched Raw, ok bool) {
	current, exists := c.byID[id]
	if !exists {
		return nil, false
	}
	current = current.With(key, value)
	c.byID[id] = current
	return current.Clone(), true
}

// Remove deletes the object with id and reports whether it was present.
func (c *Collection) Remove(id string) bool {
	if _, ok := c.byID[id]; !ok {
		return false
	}
	delete(c.byID, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the object with id.
func (c *Collection) Get(id string) (Raw, bool) {
	raw, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	return raw.Clone(), true
}

// Len returns the number of objects.
func (c *Collection) Len() int {
	return len(c.order)
}

// Snapshot returns copies of every object in arrival order.
func (c *Collection) Snapshot() []Raw {
	out := make([]Raw, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].Clone())
	}
	return out
}

// Reset drops every object.
func (c *Collection) Reset() {
	c.order = nil
	c.byID = make(map[string]Raw)
}
