package registry

import (
	"fmt"
	"sync"
)

// ErrNotOwner is returned when an entry exists but belongs to a different
// owner than the one asking. It wraps ErrNotFound so callers that only care
// about presence keep treating it as a miss.
var ErrNotOwner = fmt.Errorf("%w: owned by another thread", ErrNotFound)

// Owner identifies whoever is allowed to use an entry in an Owned map.
// At the C ABI this is the calling OS thread.
type Owner int64

// Owned is a map whose entries are visible only to the owner that created
// them. The same identifier may exist independently under several owners.
type Owned[V any] struct {
	mu     sync.Mutex
	owners map[Owner]map[string]V
	count  int
}

// NewOwned creates an empty Owned map.
func NewOwned[V any]() *Owned[V] {
	return &Owned[V]{owners: make(map[Owner]map[string]V)}
}

// Put stores v under (owner, id), replacing and returning any previous entry.
func (o *Owned[V]) Put(owner Owner, id string, v V) (old V, replaced bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries, ok := o.owners[owner]
	if !ok {
		entries = make(map[string]V)
		o.owners[owner] = entries
	}
	old, replaced = entries[id]
	if !replaced {
		o.count++
	}
	entries[id] = v
	return old, replaced
}

// Get returns the entry for (owner, id). When the identifier exists only
// under other owners the error is ErrNotOwner, otherwise ErrNotFound.
func (o *Owned[V]) Get(owner Owner, id string) (V, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if v, ok := o.owners[owner][id]; ok {
		return v, nil
	}
	var zero V
	return zero, o.missLocked(owner, id)
}

// Remove deletes and returns the entry for (owner, id) with the same error
// rules as Get.
func (o *Owned[V]) Remove(owner Owner, id string) (V, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entries := o.owners[owner]
	v, ok := entries[id]
	if !ok {
		var zero V
		return zero, o.missLocked(owner, id)
	}

	delete(entries, id)
	if len(entries) == 0 {
		delete(o.owners, owner)
	}
	o.count--
	return v, nil
}

// Drain empties the map and returns every entry across all owners.
func (o *Owned[V]) Drain() []V {
	o.mu.Lock()
	defer o.mu.Unlock()

	drained := make([]V, 0, o.count)
	for _, entries := range o.owners {
		for _, v := range entries {
			drained = append(drained, v)
		}
	}
	o.owners = make(map[Owner]map[string]V)
	o.count = 0
	return drained
}

// Len returns the number of entries across all owners.
func (o *Owned[V]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.count
}

func (o *Owned[V]) missLocked(owner Owner, id string) error {
	for other, entries := range o.owners {
		if other == owner {
			continue
		}
		if _, ok := entries[id]; ok {
			return ErrNotOwner
		}
	}
	return ErrNotFound
}
