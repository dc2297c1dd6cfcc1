package identifier

import "sync"

// KnownSet is the set of identifiers currently present in the directory.
// It is safe for concurrent use. A nil *KnownSet is an empty set.
type KnownSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

// NewKnownSet creates a set holding ids.
func NewKnownSet(ids ...string) *KnownSet {
	s := &KnownSet{}
	s.Replace(ids)
	return s
}

// Replace swaps the whole content of the set.
func (s *KnownSet) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id != "" {
			next[id] = struct{}{}
		}
	}

	s.mu.Lock()
	s.ids = next
	s.mu.Unlock()
}

// Add inserts a single identifier.
func (s *KnownSet) Add(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	s.ids[id] = struct{}{}
	s.mu.Unlock()
}

// Remove deletes a single identifier.
func (s *KnownSet) Remove(id string) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// Contains reports whether id is known.
func (s *KnownSet) Contains(id string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of identifiers.
func (s *KnownSet) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
