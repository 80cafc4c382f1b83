package vulkan

import (
	"fmt"
	"sync"
)

// handleTable maps the opaque ids handed across the gpu.Device boundary onto
// live driver objects. Ids start at 1 so the zero handle stays null.
type handleTable[T any] struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]T
}

func (t *handleTable[T]) put(v T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.entries == nil {
		t.entries = map[uint64]T{}
	}
	t.next++
	t.entries[t.next] = v
	return t.next
}

// get resolves an id. An unknown id is a caller bug: it means a handle was
// forged, double-destroyed or leaked across device instances.
func (t *handleTable[T]) get(id uint64) T {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[id]
	if !ok {
		panic(fmt.Sprintf("vulkan: invalid handle %d", id))
	}
	return v
}

// take resolves and removes an id in one step, for destroy paths.
func (t *handleTable[T]) take(id uint64) T {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.entries[id]
	if !ok {
		panic(fmt.Sprintf("vulkan: invalid handle %d", id))
	}
	delete(t.entries, id)
	return v
}
