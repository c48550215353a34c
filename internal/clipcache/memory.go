package clipcache

import (
	"container/list"
	"context"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory is an in-process LRU clip cache bounded by total payload bytes.
type Memory struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[string]*list.Element
	order    *list.List // front is most recently used
}

type memoryEntry struct {
	key     string
	payload []byte
}

// NewMemory returns a Memory cache holding at most capacity bytes of
// payload. A capacity <= 0 disables eviction.
func NewMemory(capacity int64) *Memory {
	return &Memory{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get implements [Store].
func (m *Memory) Get(_ context.Context, key Key) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key.String()]
	if !ok {
		return nil, false, nil
	}
	m.order.MoveToFront(elem)
	return elem.Value.(*memoryEntry).payload, true, nil
}

// Put implements [Store]. A payload larger than the whole capacity is not
// stored.
func (m *Memory) Put(_ context.Context, key Key, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key.String()
	if elem, ok := m.items[k]; ok {
		m.order.MoveToFront(elem)
		return nil
	}
	n := int64(len(payload))
	if m.capacity > 0 && n > m.capacity {
		return nil
	}
	for m.capacity > 0 && m.size+n > m.capacity {
		m.evictOldest()
	}
	m.items[k] = m.order.PushFront(&memoryEntry{key: k, payload: payload})
	m.size += n
	return nil
}

// Len returns the number of cached clips.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Size returns the total payload bytes held.
func (m *Memory) Size() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

func (m *Memory) evictOldest() {
	elem := m.order.Back()
	if elem == nil {
		return
	}
	e := m.order.Remove(elem).(*memoryEntry)
	delete(m.items, e.key)
	m.size -= int64(len(e.payload))
}
