package registry

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTombstones is the number of removed identifiers remembered.
const DefaultTombstones = 1024

// Tombstones remembers a bounded number of recently removed identifiers.
// An identifier is forgotten when it is reused for a new entry or when it
// falls off the end of the LRU.
type Tombstones struct {
	cache *lru.Cache[string, struct{}]
}

// NewTombstones creates a set remembering up to size identifiers.
// A non-positive size uses DefaultTombstones.
func NewTombstones(size int) *Tombstones {
	if size <= 0 {
		size = DefaultTombstones
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		// lru.New only fails for a non-positive size.
		panic(err)
	}
	return &Tombstones{cache: cache}
}

// Bury records id as removed.
func (t *Tombstones) Bury(id string) {
	t.cache.Add(id, struct{}{})
}

// Revive forgets id, typically because a new entry now uses it.
func (t *Tombstones) Revive(id string) {
	t.cache.Remove(id)
}

// Buried reports whether id was removed recently.
func (t *Tombstones) Buried(id string) bool {
	return t.cache.Contains(id)
}

// Len returns the number of remembered identifiers.
func (t *Tombstones) Len() int {
	return t.cache.Len()
}
