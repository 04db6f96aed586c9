package download

import "sync"

// InFlightSet tracks content hashes with a download in progress.
type InFlightSet struct {
	mu  sync.Mutex
	set map[string]struct{}
}

func NewInFlightSet() *InFlightSet {
	return &InFlightSet{set: make(map[string]struct{})}
}

// TryAdd inserts hash and reports whether it was absent.
func (s *InFlightSet) TryAdd(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[hash]; ok {
		return false
	}
	s.set[hash] = struct{}{}
	return true
}

// Remove deletes hash and reports whether it was present.
func (s *InFlightSet) Remove(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[hash]; !ok {
		return false
	}
	delete(s.set, hash)
	return true
}

func (s *InFlightSet) Contains(hash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[hash]
	return ok
}

func (s *InFlightSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.set)
}
