package registry

import (
	"sync"

	"coderunner/internal/model"
)

// cache is the in-memory (runtime-id -> descriptor) mirror, guarded
// by a reader-writer lock since reads happen on every execution and
// writes only during install/delete.
type cache struct {
	mu    sync.RWMutex
	byID  map[uint32]model.Runtime
	names map[string]uint32
}

func newCache() *cache {
	return &cache{
		byID:  make(map[uint32]model.Runtime),
		names: make(map[string]uint32),
	}
}

func (c *cache) loadAll(descriptors []model.Runtime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range descriptors {
		c.byID[d.ID] = d
		c.names[d.Name] = d.ID
	}
}

func (c *cache) get(id uint32) (model.Runtime, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byID[id]
	return d, ok
}

func (c *cache) list() []model.RuntimeSummary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.RuntimeSummary, 0, len(c.byID))
	for id, d := range c.byID {
		out = append(out, model.RuntimeSummary{ID: id, Name: d.Name})
	}
	return out
}

func (c *cache) nameExists(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.names[name]
	return ok
}

func (c *cache) insert(d model.Runtime) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[d.ID] = d
	c.names[d.Name] = d.ID
}

func (c *cache) remove(id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.byID[id]; ok {
		delete(c.names, d.Name)
		delete(c.byID, id)
	}
}
