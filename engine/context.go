package flowengine

import (
	"slices"
	"sync"

	"github.com/c360/semflow/component"
)

// memoryStore is an in-process ContextStore.
type memoryStore struct {
	mu   sync.RWMutex
	data map[string]any
}

var _ component.ContextStore = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]any)}
}

func (s *memoryStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *memoryStore) Set(key string, value any) {
	s.mu.Lock()
	s.data[key] = value
	s.mu.Unlock()
}

func (s *memoryStore) Delete(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

func (s *memoryStore) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	s.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// contextStores owns every scope of a runtime. Flow stores are keyed by flow
// tab id, node stores by node id; both outlive redeploys.
type contextStores struct {
	mu     sync.Mutex
	global *memoryStore
	flows  map[string]*memoryStore
	nodes  map[string]*memoryStore
}

func newContextStores() *contextStores {
	return &contextStores{
		global: newMemoryStore(),
		flows:  make(map[string]*memoryStore),
		nodes:  make(map[string]*memoryStore),
	}
}

func (c *contextStores) forNode(nodeID, flowID string) component.ContextSet {
	c.mu.Lock()
	defer c.mu.Unlock()

	ns, ok := c.nodes[nodeID]
	if !ok {
		ns = newMemoryStore()
		c.nodes[nodeID] = ns
	}
	fs, ok := c.flows[flowID]
	if !ok {
		fs = newMemoryStore()
		c.flows[flowID] = fs
	}
	return component.ContextSet{Node: ns, Flow: fs, Global: c.global}
}

// retain drops node stores whose id is not in keep.
func (c *contextStores) retain(keep map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.nodes {
		if !keep[id] {
			delete(c.nodes, id)
		}
	}
}
