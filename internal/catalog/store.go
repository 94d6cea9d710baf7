package catalog

import "sync/atomic"

// Store holds the live catalog and supports atomic replacement, so a
// reload is either fully visible or not at all; readers never observe
// a partially updated catalog.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore returns a store serving the given catalog.
func NewStore(cat *Catalog) *Store {
	store := &Store{}
	store.current.Store(cat)
	return store
}

// Current returns the catalog readers should use. The returned catalog
// is immutable.
func (s *Store) Current() *Catalog {
	return s.current.Load()
}

// Swap atomically replaces the live catalog.
func (s *Store) Swap(cat *Catalog) {
	s.current.Store(cat)
}
