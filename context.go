package stepflow

import (
	"maps"
	"slices"
	"sync"
)

// SharedContext is the key/value store steps use to hand data to each other.
//
// The engine owns the live instance. Concurrent work only ever receives a
// Snapshot, and the engine applies the snapshot back with MergeUpdates after
// the work has finished.
type SharedContext struct {
	values map[string]any
	mu     sync.RWMutex
}

func NewSharedContext() *SharedContext {
	return &SharedContext{values: make(map[string]any)}
}

// NewSharedContextFrom returns a context seeded with a copy of data.
func NewSharedContextFrom(data map[string]any) *SharedContext {
	c := NewSharedContext()
	maps.Copy(c.values, data)

	return c
}

func (c *SharedContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Get returns the value stored under key, or nil when the key is absent.
func (c *SharedContext) Get(key string) any {
	val, _ := c.Lookup(key)

	return val
}

func (c *SharedContext) Lookup(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	val, ok := c.values[key]

	return val, ok
}

func (c *SharedContext) Has(key string) bool {
	_, ok := c.Lookup(key)

	return ok
}

func (c *SharedContext) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

func (c *SharedContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.values)
}

// Keys returns the stored keys in sorted order.
func (c *SharedContext) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Sorted(maps.Keys(c.values))
}

// Data returns a shallow copy of the stored values.
func (c *SharedContext) Data() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.values)
}

// Snapshot returns an independent copy. Values are copied shallowly, so
// nested maps or slices stored by reference are still shared.
func (c *SharedContext) Snapshot() *SharedContext {
	return &SharedContext{values: c.Data()}
}

// MergeUpdates applies every key of updates to c. Last writer wins.
func (c *SharedContext) MergeUpdates(updates *SharedContext) {
	if updates == nil || updates == c {
		return
	}

	data := updates.Data()

	c.mu.Lock()
	defer c.mu.Unlock()
	maps.Copy(c.values, data)
}
