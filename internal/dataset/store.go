package dataset

import "sync"

// Store holds the current table behind a RWMutex. Readers grab the pointer
// and keep using it even while a reload swaps in a replacement; the old table
// stays valid for in-flight analyses. Tables are never edited in place.
type Store struct {
	mu    sync.RWMutex
	table *Table
}

func NewStore(t *Table) *Store {
	return &Store{table: t}
}

// Table returns the current dataset, or nil before the first load.
func (s *Store) Table() *Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Swap replaces the current dataset wholesale.
func (s *Store) Swap(t *Table) {
	s.mu.Lock()
	s.table = t
	s.mu.Unlock()
}
